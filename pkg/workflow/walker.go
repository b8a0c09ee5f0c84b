package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

// MaxSteps is the per-run step-count ceiling. A walk that reaches it is
// assumed to be runaway and fails with max_steps_exceeded.
const MaxSteps = 50

// Walker drives one run through a definition's step graph, from the start
// node to termination.
type Walker struct {
	retrier *Retrier
	runs    persistence.RunRepository
	logger  *slog.Logger
}

func NewWalker(retrier *Retrier, runs persistence.RunRepository, logger *slog.Logger) *Walker {
	return &Walker{
		retrier: retrier,
		runs:    runs,
		logger:  logger.With("module", "graph_walker"),
	}
}

// ExecutedStep is one entry of a walk's ordered execution log.
type ExecutedStep struct {
	StepID   string               `json:"step_id"`
	Status   models.RunStepStatus `json:"status"`
	Output   map[string]any       `json:"output,omitempty"`
	Attempts int                  `json:"attempts"`
}

// WalkResult is the terminal state of one walk. When Failed is true, the
// partial Executed log covers everything that ran before the failure.
type WalkResult struct {
	Executed []ExecutedStep
	Error    string
	Failed   bool
}

// Walk executes the definition for a run. Step outputs are folded back into
// the run context under "steps.<id>" so later steps can reference them.
// Component errors never propagate past this boundary; they surface as the
// walk's terminal state.
func (w *Walker) Walk(
	ctx context.Context,
	run *models.WorkflowRun,
	def *models.Definition,
	actor *models.Actor,
	data map[string]any,
) *WalkResult {
	def.Normalize()

	result := &WalkResult{Executed: make([]ExecutedStep, 0, len(def.Steps))}

	stepOutputs, ok := data["steps"].(map[string]any)
	if !ok {
		stepOutputs = make(map[string]any)
		data["steps"] = stepOutputs
	}

	visited := make(map[string]bool)
	current := def.StartStep()
	count := 0

	for current != "" {
		count++
		if count > MaxSteps {
			return w.fail(result, ErrMaxStepsExceeded.Error())
		}

		if visited[current] {
			return w.fail(result, ErrLoopDetected.Error())
		}

		visited[current] = true

		step, found := def.StepByID(current)
		if !found {
			return w.fail(result, fmt.Sprintf("%s: %s", ErrMissingStep.Error(), current))
		}

		stepResult, attempts, err := w.retrier.ExecuteWithRetry(ctx, run, def, step, actor, data)

		executed := ExecutedStep{StepID: step.ID, Attempts: attempts}
		if stepResult != nil {
			executed.Status = stepResult.Status
			executed.Output = stepResult.Output
		}

		result.Executed = append(result.Executed, executed)
		w.logStep(ctx, run, step, executed)

		if err != nil {
			errMsg := err.Error()
			if stepResult != nil {
				if output, ok := stepResult.Output["error"].(string); ok {
					errMsg = output
				}
			}

			return w.fail(result, errMsg)
		}

		stepOutputs[step.ID] = stepResult.Output
		current = stepResult.Next
	}

	return result
}

func (w *Walker) fail(result *WalkResult, errMsg string) *WalkResult {
	result.Failed = true
	result.Error = errMsg

	return result
}

// logStep records the step's final outcome. One row per step, not per
// attempt.
func (w *Walker) logStep(ctx context.Context, run *models.WorkflowRun, step *models.Step, executed ExecutedStep) {
	runStep := &models.RunStep{
		RunID:   run.ID,
		StepKey: step.ID,
		Status:  executed.Status,
		Input: map[string]any{
			"type":     string(step.Type),
			"config":   step.Config,
			"attempts": executed.Attempts,
		},
		Output: executed.Output,
	}

	err := w.runs.CreateStep(ctx, runStep)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to record run step",
			"run_id", run.ID, "step_id", step.ID, "error", err)
	}
}
