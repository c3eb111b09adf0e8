package saga

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current status of a saga execution
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusFailed       Status = "FAILED"
)

// StepStatus represents the status of an individual step record
type StepStatus string

const (
	StepStatusPending            StepStatus = "PENDING"
	StepStatusExecuting          StepStatus = "EXECUTING"
	StepStatusCompleted          StepStatus = "COMPLETED"
	StepStatusFailed             StepStatus = "FAILED"
	StepStatusCompensating       StepStatus = "COMPENSATING"
	StepStatusCompensated        StepStatus = "COMPENSATED"
	StepStatusCompensationFailed StepStatus = "COMPENSATION_FAILED"
)

// Step is one forward action in a saga. Execute receives the current
// execution payload and returns the payload for the next step.
type Step interface {
	Name() string
	Execute(ctx context.Context, payload []byte) ([]byte, error)

	// CanRetry reports whether the failed attempt is worth retrying.
	CanRetry(err error) bool

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries() int
}

// Compensator is implemented by steps that can undo their effect.
// Compensate receives the step's recorded request and response
// payloads, so it works from durable state alone.
type Compensator interface {
	Compensate(ctx context.Context, request, response []byte) error
}

// Execution is a persisted saga run
type Execution struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Steps       []*StepRecord   `json:"steps"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// StepRecord is the persisted state of one step within an execution
type StepRecord struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	Name        string          `json:"name"`
	StepOrder   int             `json:"step_order"`
	Status      StepStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"max_retries"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// DeadLetter records a compensation failure for operator remediation.
// Dead letters are never retried automatically.
type DeadLetter struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	StepName    string    `json:"step_name"`
	Reason      string    `json:"reason"`
	Payload     []byte    `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewExecution creates a PENDING execution for the given payload
func NewExecution(name string, payload []byte) *Execution {
	now := time.Now()
	return &Execution{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StepByOrder returns the record with the given step order, or nil
func (e *Execution) StepByOrder(order int) *StepRecord {
	for _, s := range e.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// IsTerminal reports whether the execution has finished
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case StatusCompleted, StatusCompensated, StatusFailed:
		return true
	}
	return false
}
