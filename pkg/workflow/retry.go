package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/classflow/classflow/pkg/entities"
	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/persistence"
)

const (
	maxAttemptsCeiling = 5
	backoffCeiling     = 3000 * time.Millisecond
)

// retryPolicy is read from a step's `retry` config block and clamped to the
// engine's bounds.
type retryPolicy struct {
	maxAttempts int
	backoff     time.Duration
}

func retryPolicyFromConfig(config map[string]any) retryPolicy {
	policy := retryPolicy{maxAttempts: 1, backoff: 0}

	retry, ok := config["retry"].(map[string]any)
	if !ok {
		return policy
	}

	if attempts, ok := configInt(retry["max_attempts"]); ok {
		policy.maxAttempts = min(max(attempts, 1), maxAttemptsCeiling)
	}

	if backoffMs, ok := configInt(retry["backoff_ms"]); ok {
		policy.backoff = min(max(time.Duration(backoffMs)*time.Millisecond, 0), backoffCeiling)
	}

	return policy
}

// configInt reads a numeric config value. JSON decoding yields float64.
func configInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// deadLetterDisabled reports whether the step opts out of dead-letter
// capture with an explicit `dead_letter: false`.
func deadLetterDisabled(config map[string]any) bool {
	enabled, ok := config["dead_letter"].(bool)

	return ok && !enabled
}

// Retrier wraps the Executor with bounded retry and dead-letter capture.
type Retrier struct {
	executor    *Executor
	deadLetters persistence.DeadLetterRepository
	logger      *slog.Logger

	// Sleep is swapped out by tests; backoff sleeps are synchronous and
	// block only the current invocation.
	Sleep func(time.Duration)
}

func NewRetrier(executor *Executor, deadLetters persistence.DeadLetterRepository, logger *slog.Logger) *Retrier {
	return &Retrier{
		executor:    executor,
		deadLetters: deadLetters,
		logger:      logger.With("module", "retrier"),
		Sleep:       time.Sleep,
	}
}

// ExecuteWithRetry executes one step up to the policy's attempt limit,
// sleeping backoff*attempt between attempts (linear backoff). Terminal
// failures are never retried. After the final failure a dead letter is
// written unless the step disables it. Returns the last attempt's result,
// the attempt count, and the final error.
func (r *Retrier) ExecuteWithRetry(
	ctx context.Context,
	run *models.WorkflowRun,
	def *models.Definition,
	step *models.Step,
	actor *models.Actor,
	data map[string]any,
) (*StepResult, int, error) {
	policy := retryPolicyFromConfig(step.Config)
	scope := entities.Scope{DistrictID: run.DistrictID, SchoolID: run.SchoolID}

	var (
		result  *StepResult
		lastErr error
	)

	attempts := 0

	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		attempts = attempt

		result, lastErr = r.executor.ExecuteStep(ctx, def, step, actor, scope, data)
		if lastErr == nil {
			return result, attempts, nil
		}

		if IsTerminalStepError(lastErr) {
			r.logger.WarnContext(ctx, "Step failed terminally, not retrying",
				"run_id", run.ID, "step_id", step.ID, "error", lastErr)

			break
		}

		if attempt < policy.maxAttempts {
			r.logger.WarnContext(ctx, "Step failed, retrying",
				"run_id", run.ID, "step_id", step.ID,
				"attempt", attempt, "max_attempts", policy.maxAttempts,
				"error", lastErr)

			r.Sleep(policy.backoff * time.Duration(attempt))
		}
	}

	// Permission-gated steps are logged as skipped, not failed; there is
	// nothing for remediation to replay, so no dead letter is written.
	if !errors.Is(lastErr, ErrInsufficientPermissions) && !deadLetterDisabled(step.Config) {
		r.writeDeadLetter(ctx, run, step, result, attempts, lastErr)
	}

	return result, attempts, lastErr
}

func (r *Retrier) writeDeadLetter(
	ctx context.Context,
	run *models.WorkflowRun,
	step *models.Step,
	result *StepResult,
	attempts int,
	stepErr error,
) {
	var lastOutput map[string]any
	if result != nil {
		lastOutput = result.Output
	}

	deadLetter := &models.DeadLetter{
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
		StepKey:    step.ID,
		ActorID:    run.ActorID,
		DistrictID: run.DistrictID,
		SchoolID:   run.SchoolID,
		Input: map[string]any{
			"step":     step.Config,
			"type":     string(step.Type),
			"attempts": attempts,
		},
		Error: stepErr.Error(),
		Metadata: map[string]any{
			"attempts":    attempts,
			"backoff_ms":  retryPolicyFromConfig(step.Config).backoff.Milliseconds(),
			"last_output": lastOutput,
		},
	}

	err := r.deadLetters.Create(ctx, deadLetter)
	if err != nil {
		// A failed dead-letter write must not mask the step failure.
		r.logger.ErrorContext(ctx, "Failed to write dead letter",
			"run_id", run.ID, "step_id", step.ID, "error", err)
	}
}
