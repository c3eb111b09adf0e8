package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/retry"
)

// ErrSagaFailed is returned when a saga could not complete. Inspect
// the execution status to distinguish COMPENSATED from FAILED.
var ErrSagaFailed = fmt.Errorf("saga failed")

// OrchestratorConfig holds configuration for the orchestrator
type OrchestratorConfig struct {
	Store       Store
	BackoffBase time.Duration
	BackoffMax  time.Duration
	StepTimeout time.Duration
}

// Orchestrator drives saga executions: forward steps with per-step
// retry, then reverse-order compensation when a step fails for good.
// Executions are independent; the orchestrator holds no cross-saga
// state beyond the store.
type Orchestrator struct {
	store       Store
	backoff     *retry.Config
	stepTimeout time.Duration
}

// NewOrchestrator creates a new saga orchestrator
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	max := cfg.BackoffMax
	if max <= 0 {
		max = 30 * time.Second
	}
	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &Orchestrator{
		store: store,
		backoff: &retry.Config{
			InitialInterval: base,
			MaxInterval:     max,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
		stepTimeout: stepTimeout,
	}
}

// Execute creates a new execution and runs the steps to completion.
// Every step gets a PENDING record up front, so an interrupted run
// shows the full plan, not just the steps it reached.
func (o *Orchestrator) Execute(ctx context.Context, name string, steps []Step, payload []byte) (*Execution, error) {
	execution := NewExecution(name, payload)
	if err := o.store.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save saga execution: %w", err)
	}

	for i, step := range steps {
		record := newStepRecord(execution.ID, step, i+1)
		if err := o.store.SaveStep(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save step record: %w", err)
		}
		execution.Steps = append(execution.Steps, record)
	}

	logger.Get().Info("saga started",
		zap.String("saga_id", execution.ID),
		zap.String("saga", name),
		zap.Int("steps", len(steps)))

	return o.run(ctx, execution, steps)
}

func newStepRecord(executionID string, step Step, order int) *StepRecord {
	return &StepRecord{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Name:        step.Name(),
		StepOrder:   order,
		Status:      StepStatusPending,
		MaxRetries:  step.MaxRetries(),
	}
}

// Resume continues an interrupted execution. Completed steps are
// skipped; a COMPENSATING execution resumes compensation.
func (o *Orchestrator) Resume(ctx context.Context, executionID string, steps []Step) (*Execution, error) {
	execution, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.IsTerminal() {
		return execution, nil
	}

	logger.Get().Info("saga resumed",
		zap.String("saga_id", execution.ID),
		zap.String("status", string(execution.Status)))

	if execution.Status == StatusCompensating {
		return o.compensate(ctx, execution, steps, execution.Error)
	}
	return o.run(ctx, execution, steps)
}

// GetExecution retrieves an execution by ID
func (o *Orchestrator) GetExecution(ctx context.Context, id string) (*Execution, error) {
	return o.store.GetExecution(ctx, id)
}

func (o *Orchestrator) run(ctx context.Context, execution *Execution, steps []Step) (*Execution, error) {
	log := logger.Get()

	o.setStatus(ctx, execution, StatusInProgress)

	payload := []byte(execution.Payload)
	var failedErr error

	for i, step := range steps {
		order := i + 1

		record := execution.StepByOrder(order)
		if record != nil && record.Status == StepStatusCompleted {
			// Already done in a previous run; its response feeds the
			// next step.
			if len(record.Response) > 0 {
				payload = record.Response
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			failedErr = err
			break
		}

		if record == nil {
			// Resumed execution predating this step's record.
			record = newStepRecord(execution.ID, step, order)
			if err := o.store.SaveStep(ctx, record); err != nil {
				return nil, fmt.Errorf("failed to save step record: %w", err)
			}
			execution.Steps = append(execution.Steps, record)
		}

		response, err := o.executeStep(ctx, execution, step, record, payload)
		if err != nil {
			failedErr = err
			log.Error("saga step failed",
				zap.String("saga_id", execution.ID),
				zap.String("step", step.Name()),
				zap.Int("attempts", record.Attempts),
				zap.Error(err))
			break
		}

		payload = response
		execution.Payload = payload
		o.update(ctx, execution)

		log.Info("saga step completed",
			zap.String("saga_id", execution.ID),
			zap.String("step", step.Name()))
	}

	if failedErr != nil {
		return o.compensate(ctx, execution, steps, failedErr.Error())
	}

	now := time.Now()
	execution.Status = StatusCompleted
	execution.CompletedAt = &now
	execution.UpdatedAt = now
	o.update(ctx, execution)

	log.Info("saga completed", zap.String("saga_id", execution.ID))
	return execution, nil
}

// executeStep runs one step with per-attempt timeout and exponential
// backoff between retries. The wait honors context cancellation.
func (o *Orchestrator) executeStep(ctx context.Context, execution *Execution, step Step, record *StepRecord, payload []byte) ([]byte, error) {
	now := time.Now()
	record.Status = StepStatusExecuting
	record.Request = payload
	record.StartedAt = &now
	o.updateStep(ctx, record)

	maxAttempts := step.MaxRetries() + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			logger.Get().Info("retrying saga step",
				zap.String("saga_id", execution.ID),
				zap.String("step", step.Name()),
				zap.Int("attempt", attempt+1))
			if err := retry.Wait(ctx, o.backoff, attempt-1); err != nil {
				lastErr = err
				break
			}
		}

		record.Attempts = attempt + 1
		o.updateStep(ctx, record)

		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		response, err := step.Execute(stepCtx, payload)
		cancel()

		if err == nil {
			finished := time.Now()
			record.Status = StepStatusCompleted
			record.Response = response
			record.Error = ""
			record.FinishedAt = &finished
			o.updateStep(ctx, record)
			return response, nil
		}

		lastErr = err
		record.Error = err.Error()
		if !step.CanRetry(err) {
			break
		}
	}

	finished := time.Now()
	record.Status = StepStatusFailed
	record.FinishedAt = &finished
	o.updateStep(ctx, record)
	return nil, lastErr
}

// compensate undoes completed steps in reverse order. It keeps going
// past individual failures so every step gets its chance to undo; any
// failure leaves the execution FAILED with a dead letter recorded.
func (o *Orchestrator) compensate(ctx context.Context, execution *Execution, steps []Step, cause string) (*Execution, error) {
	log := logger.Get()

	execution.Error = cause
	o.setStatus(ctx, execution, StatusCompensating)

	log.Warn("saga compensating",
		zap.String("saga_id", execution.ID),
		zap.String("cause", cause))

	byOrder := make(map[int]Step, len(steps))
	for i, step := range steps {
		byOrder[i+1] = step
	}

	maxOrder := 0
	for _, record := range execution.Steps {
		if record.StepOrder > maxOrder {
			maxOrder = record.StepOrder
		}
	}

	compensationFailed := false
	for order := maxOrder; order >= 1; order-- {
		record := execution.StepByOrder(order)
		if record == nil {
			continue
		}
		// COMPENSATING records are retried: a previous run was cut off
		// before it learned the outcome.
		if record.Status != StepStatusCompleted && record.Status != StepStatusCompensating {
			continue
		}

		step, ok := byOrder[order]
		if !ok {
			continue
		}
		compensator, ok := step.(Compensator)
		if !ok {
			// Step has no inverse; nothing to undo.
			continue
		}

		// A crash between here and the outcome leaves COMPENSATING,
		// which Resume treats as not yet undone.
		record.Status = StepStatusCompensating
		o.updateStep(ctx, record)

		compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.stepTimeout)
		err := compensator.Compensate(compCtx, record.Request, record.Response)
		cancel()

		if err != nil {
			compensationFailed = true
			record.Status = StepStatusCompensationFailed
			record.Error = err.Error()
			o.updateStep(ctx, record)

			log.Error("saga compensation failed",
				zap.String("saga_id", execution.ID),
				zap.String("step", record.Name),
				zap.Error(err))

			letter := &DeadLetter{
				ID:          uuid.New().String(),
				ExecutionID: execution.ID,
				StepName:    record.Name,
				Reason:      err.Error(),
				Payload:     record.Request,
				CreatedAt:   time.Now(),
			}
			if dlErr := o.store.SaveDeadLetter(ctx, letter); dlErr != nil {
				log.Error("failed to record dead letter",
					zap.String("saga_id", execution.ID), zap.Error(dlErr))
			}
			continue
		}

		record.Status = StepStatusCompensated
		o.updateStep(ctx, record)

		log.Info("saga step compensated",
			zap.String("saga_id", execution.ID),
			zap.String("step", record.Name))
	}

	now := time.Now()
	if compensationFailed {
		execution.Status = StatusFailed
	} else {
		execution.Status = StatusCompensated
	}
	execution.CompletedAt = &now
	execution.UpdatedAt = now
	o.update(ctx, execution)

	return execution, fmt.Errorf("%w: %s", ErrSagaFailed, cause)
}

func (o *Orchestrator) setStatus(ctx context.Context, execution *Execution, status Status) {
	execution.Status = status
	execution.UpdatedAt = time.Now()
	o.update(ctx, execution)
}

func (o *Orchestrator) update(ctx context.Context, execution *Execution) {
	if err := o.store.UpdateExecution(ctx, execution); err != nil {
		logger.Get().Error("failed to update saga execution",
			zap.String("saga_id", execution.ID), zap.Error(err))
	}
}

func (o *Orchestrator) updateStep(ctx context.Context, record *StepRecord) {
	if err := o.store.UpdateStep(ctx, record); err != nil {
		logger.Get().Error("failed to update saga step",
			zap.String("saga_id", record.ExecutionID),
			zap.String("step", record.Name), zap.Error(err))
	}
}
