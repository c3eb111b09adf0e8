package saga

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	// ErrExecutionNotFound is returned when an execution is not found
	ErrExecutionNotFound = errors.New("saga execution not found")
	// ErrExecutionExists is returned when saving a duplicate execution
	ErrExecutionExists = errors.New("saga execution already exists")
)

// Store persists saga executions, their step records, and dead letters
type Store interface {
	// SaveExecution persists a new execution
	SaveExecution(ctx context.Context, execution *Execution) error
	// UpdateExecution updates execution-level fields
	UpdateExecution(ctx context.Context, execution *Execution) error
	// GetExecution retrieves an execution with its step records
	GetExecution(ctx context.Context, id string) (*Execution, error)
	// SaveStep persists a new step record
	SaveStep(ctx context.Context, step *StepRecord) error
	// UpdateStep updates an existing step record
	UpdateStep(ctx context.Context, step *StepRecord) error
	// ListByStatus retrieves executions in a given status
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Execution, error)
	// SaveDeadLetter records a compensation failure
	SaveDeadLetter(ctx context.Context, letter *DeadLetter) error
}

// MemoryStore is an in-memory implementation of Store for testing
type MemoryStore struct {
	mu          sync.RWMutex
	executions  map[string]*Execution
	deadLetters []*DeadLetter
}

// NewMemoryStore creates a new in-memory saga store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*Execution),
	}
}

// deepCopy round-trips through JSON so callers never share state with
// the store.
func deepCopy(execution *Execution) (*Execution, error) {
	data, err := json.Marshal(execution)
	if err != nil {
		return nil, err
	}
	copied := &Execution{}
	if err := json.Unmarshal(data, copied); err != nil {
		return nil, err
	}
	return copied, nil
}

func (s *MemoryStore) SaveExecution(ctx context.Context, execution *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[execution.ID]; exists {
		return ErrExecutionExists
	}
	copied, err := deepCopy(execution)
	if err != nil {
		return err
	}
	s.executions[execution.ID] = copied
	return nil
}

func (s *MemoryStore) UpdateExecution(ctx context.Context, execution *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.executions[execution.ID]
	if !exists {
		return ErrExecutionNotFound
	}
	copied, err := deepCopy(execution)
	if err != nil {
		return err
	}
	// Keep step records managed through SaveStep/UpdateStep.
	copied.Steps = stored.Steps
	s.executions[execution.ID] = copied
	return nil
}

func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, exists := s.executions[id]
	if !exists {
		return nil, ErrExecutionNotFound
	}
	return deepCopy(execution)
}

func (s *MemoryStore) SaveStep(ctx context.Context, step *StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, exists := s.executions[step.ExecutionID]
	if !exists {
		return ErrExecutionNotFound
	}
	copied := *step
	execution.Steps = append(execution.Steps, &copied)
	return nil
}

func (s *MemoryStore) UpdateStep(ctx context.Context, step *StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, exists := s.executions[step.ExecutionID]
	if !exists {
		return ErrExecutionNotFound
	}
	for i, stored := range execution.Steps {
		if stored.ID == step.ID {
			copied := *step
			execution.Steps[i] = &copied
			return nil
		}
	}
	return ErrExecutionNotFound
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Execution
	for _, execution := range s.executions {
		if execution.Status != status {
			continue
		}
		copied, err := deepCopy(execution)
		if err != nil {
			return nil, err
		}
		result = append(result, copied)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveDeadLetter(ctx context.Context, letter *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *letter
	s.deadLetters = append(s.deadLetters, &copied)
	return nil
}

// DeadLetters returns recorded dead letters. Test helper.
func (s *MemoryStore) DeadLetters() []*DeadLetter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*DeadLetter(nil), s.deadLetters...)
}
