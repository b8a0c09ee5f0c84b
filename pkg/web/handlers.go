// Package web provides the HTTP surface of the engine: event ingestion and
// read-only run endpoints.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
	"github.com/classflow/classflow/pkg/workflow"
)

// ActorHeader carries the upstream-verified identity of the caller. The
// gateway strips and re-sets it, so its presence is trusted here.
const ActorHeader = "X-Actor-ID"

// EventDispatcher is the engine surface the ingestion handler drives.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.Event) (*workflow.DispatchSummary, error)
}

type APIHandlers struct {
	persistence persistence.Persistence
	dispatcher  EventDispatcher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	p persistence.Persistence,
	dispatcher EventDispatcher,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: p,
		dispatcher:  dispatcher,
		validator:   validator,
		logger:      logger.With("module", "api"),
	}
}

// IngestEvent records an inbound event and dispatches matching workflows.
// The caller's response depends only on whether the event was recorded;
// workflow outcomes are visible via runs and the audit stream, never here.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	actorID := c.Get(ActorHeader)
	if actorID == "" {
		return unauthorized(c, "Actor identity header is required")
	}

	var req IngestEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !models.ValidEventName(req.EventName) {
		return badRequest(c, "Event name must match ^[a-z0-9][a-z0-9._-]{0,63}$")
	}

	if _, err := h.persistence.Actors().GetByID(c.Context(), actorID); err != nil {
		if persistence.IsActorNotFound(err) {
			return unauthorized(c, "Unknown actor")
		}

		return internalError(c, err)
	}

	event := &models.Event{
		Name:       req.EventName,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Metadata:   req.Metadata,
		ActorID:    actorID,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.persistence.Events().Create(c.Context(), event); err != nil {
		return internalError(c, err)
	}

	if _, err := h.dispatcher.Dispatch(c.Context(), event); err != nil {
		// The event is already recorded; dispatch failure stays
		// invisible to the caller.
		h.logger.ErrorContext(c.Context(), "Event dispatch failed",
			"event_id", event.ID, "event_name", event.Name, "error", err)
	}

	return c.Status(fiber.StatusCreated).JSON(IngestEventResponse{OK: true, ID: event.ID})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.persistence.Runs().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	steps, err := h.persistence.Runs().StepsByRun(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(TransformRunResponse(run, steps))
}

func (h *APIHandlers) ListWorkflowRuns(c fiber.Ctx) error {
	workflowID := c.Params("id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.persistence.Workflows().GetByID(c.Context(), workflowID); err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	runs, err := h.persistence.Runs().ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return internalError(c, err)
	}

	responses := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, TransformRunResponse(run, nil))
	}

	return c.JSON(fiber.Map{
		"workflow_id": workflowID,
		"runs":        responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	checkErr := h.persistence.HealthCheck(c.Context())
	if checkErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
