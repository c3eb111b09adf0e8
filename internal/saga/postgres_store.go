package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL with pgxpool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new Postgres saga store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveExecution(ctx context.Context, execution *Execution) error {
	query := `
		INSERT INTO saga_executions (
			id, name, status, payload, error, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		execution.ID,
		execution.Name,
		string(execution.Status),
		[]byte(execution.Payload),
		execution.Error,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save saga execution: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateExecution(ctx context.Context, execution *Execution) error {
	query := `
		UPDATE saga_executions
		SET status = $1, payload = $2, error = $3, updated_at = $4, completed_at = $5
		WHERE id = $6
	`
	tag, err := s.pool.Exec(ctx, query,
		string(execution.Status),
		[]byte(execution.Payload),
		execution.Error,
		execution.UpdatedAt,
		execution.CompletedAt,
		execution.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `
		SELECT id, name, status, payload, error, created_at, updated_at, completed_at
		FROM saga_executions
		WHERE id = $1
	`
	execution := &Execution{}
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&execution.ID,
		&execution.Name,
		&status,
		&execution.Payload,
		&execution.Error,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&execution.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saga execution: %w", err)
	}
	execution.Status = Status(status)

	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	execution.Steps = steps
	return execution, nil
}

func (s *PostgresStore) loadSteps(ctx context.Context, executionID string) ([]*StepRecord, error) {
	query := `
		SELECT id, saga_execution_id, name, step_order, status, attempts,
		       max_retries, request, response, error, started_at, finished_at
		FROM saga_steps
		WHERE saga_execution_id = $1
		ORDER BY step_order ASC
	`
	rows, err := s.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query saga steps: %w", err)
	}
	defer rows.Close()

	var steps []*StepRecord
	for rows.Next() {
		record := &StepRecord{}
		var status string
		err := rows.Scan(
			&record.ID,
			&record.ExecutionID,
			&record.Name,
			&record.StepOrder,
			&status,
			&record.Attempts,
			&record.MaxRetries,
			&record.Request,
			&record.Response,
			&record.Error,
			&record.StartedAt,
			&record.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saga step: %w", err)
		}
		record.Status = StepStatus(status)
		steps = append(steps, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate saga steps: %w", err)
	}
	return steps, nil
}

func (s *PostgresStore) SaveStep(ctx context.Context, step *StepRecord) error {
	query := `
		INSERT INTO saga_steps (
			id, saga_execution_id, name, step_order, status, attempts,
			max_retries, request, response, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		step.ID,
		step.ExecutionID,
		step.Name,
		step.StepOrder,
		string(step.Status),
		step.Attempts,
		step.MaxRetries,
		[]byte(step.Request),
		[]byte(step.Response),
		step.Error,
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save saga step: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStep(ctx context.Context, step *StepRecord) error {
	query := `
		UPDATE saga_steps
		SET status = $1, attempts = $2, request = $3, response = $4,
		    error = $5, started_at = $6, finished_at = $7
		WHERE id = $8
	`
	tag, err := s.pool.Exec(ctx, query,
		string(step.Status),
		step.Attempts,
		[]byte(step.Request),
		[]byte(step.Response),
		step.Error,
		step.StartedAt,
		step.FinishedAt,
		step.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Execution, error) {
	query := `
		SELECT id
		FROM saga_executions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query saga executions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan saga execution id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate saga executions: %w", err)
	}

	executions := make([]*Execution, 0, len(ids))
	for _, id := range ids {
		execution, err := s.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

func (s *PostgresStore) SaveDeadLetter(ctx context.Context, letter *DeadLetter) error {
	query := `
		INSERT INTO saga_dead_letters (
			id, saga_execution_id, step_name, reason, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		letter.ID,
		letter.ExecutionID,
		letter.StepName,
		letter.Reason,
		letter.Payload,
		letter.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}
