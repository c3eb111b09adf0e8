package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// PostgresReservationRepository implements ReservationRepository using PostgreSQL
type PostgresReservationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresReservationRepository creates a new PostgresReservationRepository
func NewPostgresReservationRepository(pool *pgxpool.Pool) *PostgresReservationRepository {
	return &PostgresReservationRepository{pool: pool}
}

const reservationColumns = `
	id, user_id, event_id, seat_ids, status, total_amount,
	idempotency_key, expires_at, confirmed_at, cancelled_at, created_at, updated_at
`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	var idempotencyKey *string

	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.EventID,
		&res.SeatIDs,
		&res.Status,
		&res.TotalAmount,
		&idempotencyKey,
		&res.ExpiresAt,
		&res.ConfirmedAt,
		&res.CancelledAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != nil {
		res.IdempotencyKey = *idempotencyKey
	}
	return res, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new reservation record
func (r *PostgresReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservation.ID),
		attribute.String("user_id", reservation.UserID),
		attribute.String("event_id", reservation.EventID),
	)

	query := `
		INSERT INTO reservations (
			id, user_id, event_id, seat_ids, status, total_amount,
			idempotency_key, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		reservation.ID,
		reservation.UserID,
		reservation.EventID,
		reservation.SeatIDs,
		reservation.Status,
		reservation.TotalAmount,
		nullString(reservation.IdempotencyKey),
		reservation.ExpiresAt,
		reservation.CreatedAt,
		reservation.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique violation on idempotency_key: another request
			// with the same key already created a reservation.
			return domain.ErrDuplicateReservation
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a reservation by its ID
func (r *PostgresReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return res, nil
}

// GetByIdempotencyKey retrieves a reservation by its idempotency key
func (r *PostgresReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.get_by_idempotency_key")
	defer span.End()

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE idempotency_key = $1`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get reservation by idempotency key: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return res, nil
}

// UpdateStatus moves a reservation from one status to another
func (r *PostgresReservationRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.update_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", id),
		attribute.String("from_status", fromStatus),
		attribute.String("to_status", toStatus),
	)

	var query string
	switch toStatus {
	case domain.ReservationStatusConfirmed:
		query = `
			UPDATE reservations
			SET status = $1, confirmed_at = $2, updated_at = $2
			WHERE id = $3 AND status = $4
		`
	case domain.ReservationStatusCancelled, domain.ReservationStatusExpired:
		query = `
			UPDATE reservations
			SET status = $1, cancelled_at = $2, updated_at = $2
			WHERE id = $3 AND status = $4
		`
	default:
		query = `
			UPDATE reservations
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`
	}

	tag, err := r.pool.Exec(ctx, query, toStatus, at, id, fromStatus)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to update reservation status: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

// FindActiveForSeats returns active reservations already covering one of the seats
func (r *PostgresReservationRepository) FindActiveForSeats(ctx context.Context, eventID string, seatIDs []string) ([]*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.find_active_for_seats")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE event_id = $1
		  AND status IN ($2, $3)
		  AND seat_ids && $4
	`

	rows, err := r.pool.Query(ctx, query,
		eventID, domain.ReservationStatusPending, domain.ReservationStatusConfirmed, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to find active reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read active reservations: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return reservations, nil
}

// FindExpired returns PENDING reservations past their deadline, oldest first
func (r *PostgresReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.find_expired")
	defer span.End()

	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, domain.ReservationStatusPending, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired reservations: %w", err)
	}

	span.SetAttributes(attribute.Int("found", len(reservations)))
	span.SetStatus(codes.Ok, "")
	return reservations, nil
}
