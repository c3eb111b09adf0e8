package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

const paymentColumns = `
	id, reservation_id, user_id, amount, currency, status,
	provider_ref, refunded_at, created_at, updated_at
`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var providerRef *string

	err := row.Scan(
		&p.ID,
		&p.ReservationID,
		&p.UserID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&providerRef,
		&p.RefundedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if providerRef != nil {
		p.ProviderRef = *providerRef
	}
	return p, nil
}

// Create inserts a new payment record
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", payment.ID),
		attribute.String("reservation_id", payment.ReservationID),
	)

	query := `
		INSERT INTO payments (
			id, reservation_id, user_id, amount, currency, status,
			provider_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		payment.ID,
		payment.ReservationID,
		payment.UserID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		nullString(payment.ProviderRef),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create payment: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a payment by its ID
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", id))

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return p, nil
}

// GetByReservationID retrieves the latest payment for a reservation
func (r *PostgresPaymentRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_reservation_id")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE reservation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, reservationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment by reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return p, nil
}

// UpdateStatus moves a payment from one status to another
func (r *PostgresPaymentRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.update_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", id),
		attribute.String("from_status", fromStatus),
		attribute.String("to_status", toStatus),
	)

	var query string
	if toStatus == domain.PaymentStatusRefunded {
		query = `
			UPDATE payments
			SET status = $1, refunded_at = $2, updated_at = $2
			WHERE id = $3 AND status = $4
		`
	} else {
		query = `
			UPDATE payments
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`
	}

	tag, err := r.pool.Exec(ctx, query, toStatus, at, id, fromStatus)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}
