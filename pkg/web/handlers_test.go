package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence/memory"
	"github.com/classflow/classflow/pkg/web"
	"github.com/classflow/classflow/pkg/workflow"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	persistence := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	dispatcher := workflow.NewDispatcher(persistence, nil, logger)
	handlers := web.NewAPIHandlers(persistence, dispatcher, validator.New(), logger)

	app := fiber.New()
	app.Get("/health", handlers.HealthCheck)

	v1 := app.Group("/v1")
	v1.Post("/events", handlers.IngestEvent)
	v1.Get("/runs/:id", handlers.GetRun)
	v1.Get("/workflows/:id/runs", handlers.ListWorkflowRuns)

	return app, persistence
}

func ingestRequest(t *testing.T, body any, actorID string) *http.Request {
	t.Helper()

	var payload []byte

	if str, ok := body.(string); ok {
		payload = []byte(str)
	} else {
		var err error

		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	if actorID != "" {
		req.Header.Set(web.ActorHeader, actorID)
	}

	return req
}

func TestAPIHandlers_IngestEvent_MissingIdentity(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(ingestRequest(t, web.IngestEventRequest{EventName: "attendance.missed"}, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIHandlers_IngestEvent_UnknownActor(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(ingestRequest(t, web.IngestEventRequest{EventName: "attendance.missed"}, "ghost"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIHandlers_IngestEvent_InvalidEventName(t *testing.T) {
	app, persistence := setupTestApp(t)
	persistence.SeedActor(&models.Actor{ID: "actor-1", Role: "teacher"})

	for _, name := range []string{"Bad Name", "UPPER.case", ".leading-dot", "semi;colon"} {
		resp, err := app.Test(ingestRequest(t, web.IngestEventRequest{EventName: name}, "actor-1"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "event name %q must be rejected", name)
	}
}

func TestAPIHandlers_IngestEvent_InvalidJSON(t *testing.T) {
	app, persistence := setupTestApp(t)
	persistence.SeedActor(&models.Actor{ID: "actor-1", Role: "teacher"})

	resp, err := app.Test(ingestRequest(t, "not-json", "actor-1"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_IngestEvent_RecordsAndResponds(t *testing.T) {
	app, persistence := setupTestApp(t)
	persistence.SeedActor(&models.Actor{ID: "actor-1", Role: "teacher"})

	resp, err := app.Test(ingestRequest(t, web.IngestEventRequest{
		EventName:  "grade.posted",
		EntityType: "assignment",
		EntityID:   "assign-7",
		Metadata:   map[string]any{"score": 91},
	}, "actor-1"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var ack web.IngestEventResponse
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.True(t, ack.OK)
	require.NotEmpty(t, ack.ID)

	event, err := persistence.Events().GetByID(context.Background(), ack.ID)
	require.NoError(t, err)
	assert.Equal(t, "grade.posted", event.Name)
	assert.Equal(t, "actor-1", event.ActorID)
}

func TestAPIHandlers_IngestEvent_WorkflowFailureInvisibleToCaller(t *testing.T) {
	app, persistence := setupTestApp(t)
	ctx := context.Background()

	persistence.SeedActor(&models.Actor{ID: "actor-1", Role: "teacher"})

	version := 1
	broken := &models.WorkflowDefinition{
		ID:               "wf-broken",
		Name:             "Broken workflow",
		Status:           models.WorkflowStatusPublished,
		Trigger:          models.Trigger{Type: "event", EventName: "grade.posted"},
		Version:          version,
		PublishedVersion: &version,
		Definition: models.Definition{Steps: []*models.Step{
			{ID: "bad", Type: models.StepTypeCreateEntity, Config: map[string]any{"entity": "grades"}},
		}},
	}
	require.NoError(t, persistence.Workflows().Save(ctx, broken))

	resp, err := app.Test(ingestRequest(t, web.IngestEventRequest{EventName: "grade.posted"}, "actor-1"))
	require.NoError(t, err)

	// Event recorded, caller acknowledged; the failure lives on the run.
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	runs, err := persistence.Runs().ListByWorkflow(ctx, "wf-broken")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestAPIHandlers_GetRun(t *testing.T) {
	app, persistence := setupTestApp(t)
	ctx := context.Background()

	run := &models.WorkflowRun{ID: "run-1", WorkflowID: "wf-1", ActorID: "actor-1", Status: models.RunStatusSucceeded}
	require.NoError(t, persistence.Runs().Create(ctx, run))
	require.NoError(t, persistence.Runs().CreateStep(ctx, &models.RunStep{
		RunID:   "run-1",
		StepKey: "notify",
		Status:  models.RunStepSucceeded,
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var got web.RunResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "run-1", got.ID)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "notify", got.Steps[0].StepKey)
}

func TestAPIHandlers_GetRun_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/runs/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ListWorkflowRuns_UnknownWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/workflows/ghost/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
