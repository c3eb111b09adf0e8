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

// PostgresSeatRepository implements SeatRepository using PostgreSQL with pgxpool
type PostgresSeatRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSeatRepository creates a new PostgresSeatRepository
func NewPostgresSeatRepository(pool *pgxpool.Pool) *PostgresSeatRepository {
	return &PostgresSeatRepository{pool: pool}
}

const seatColumns = `
	id, event_id, row_label, number, status,
	locked_by, locked_at, lock_expires_at, reservation_id, created_at, updated_at
`

func scanSeat(row pgx.Row) (*domain.Seat, error) {
	seat := &domain.Seat{}
	var (
		lockedBy      *string
		lockedAt      *time.Time
		lockExpiresAt *time.Time
		reservationID *string
	)

	err := row.Scan(
		&seat.ID,
		&seat.EventID,
		&seat.RowLabel,
		&seat.Number,
		&seat.Status,
		&lockedBy,
		&lockedAt,
		&lockExpiresAt,
		&reservationID,
		&seat.CreatedAt,
		&seat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockedBy != nil {
		seat.LockedBy = *lockedBy
	}
	seat.LockedAt = lockedAt
	seat.LockExpiresAt = lockExpiresAt
	if reservationID != nil {
		seat.ReservationID = *reservationID
	}
	return seat, nil
}

// Create inserts a new seat record
func (r *PostgresSeatRepository) Create(ctx context.Context, seat *domain.Seat) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("seat_id", seat.ID),
		attribute.String("event_id", seat.EventID),
	)

	query := `
		INSERT INTO seats (
			id, event_id, row_label, number, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		seat.ID,
		seat.EventID,
		seat.RowLabel,
		seat.Number,
		seat.Status,
		seat.CreatedAt,
		seat.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create seat: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a seat by its ID
func (r *PostgresSeatRepository) GetByID(ctx context.Context, id string) (*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("seat_id", id))

	query := `SELECT ` + seatColumns + ` FROM seats WHERE id = $1`

	seat, err := scanSeat(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSeatNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get seat: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return seat, nil
}

// GetByIDs retrieves seats by their IDs
func (r *PostgresSeatRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.get_by_ids")
	defer span.End()

	span.SetAttributes(attribute.Int("seat_count", len(ids)))

	query := `SELECT ` + seatColumns + ` FROM seats WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query seats: %w", err)
	}
	defer rows.Close()

	seats := make([]*domain.Seat, 0, len(ids))
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seats: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return seats, nil
}

// MarkLocked moves AVAILABLE -> LOCKED for ownerID
func (r *PostgresSeatRepository) MarkLocked(ctx context.Context, seatID, ownerID string, lockedAt, expiresAt time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.mark_locked")
	defer span.End()

	span.SetAttributes(
		attribute.String("seat_id", seatID),
		attribute.String("owner_id", ownerID),
	)

	query := `
		UPDATE seats
		SET status = $1, locked_by = $2, locked_at = $3, lock_expires_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`

	tag, err := r.pool.Exec(ctx, query,
		domain.SeatStatusLocked, ownerID, lockedAt, expiresAt, seatID, domain.SeatStatusAvailable)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to mark seat locked: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

// ExtendLocked pushes the durable lock expiry forward if ownerID still holds the seat
func (r *PostgresSeatRepository) ExtendLocked(ctx context.Context, seatID, ownerID string, expiresAt time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.extend_locked")
	defer span.End()

	span.SetAttributes(
		attribute.String("seat_id", seatID),
		attribute.String("owner_id", ownerID),
	)

	query := `
		UPDATE seats
		SET lock_expires_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND locked_by = $4
	`

	tag, err := r.pool.Exec(ctx, query,
		expiresAt, seatID, domain.SeatStatusLocked, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to extend seat lock: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

// MarkAvailable moves LOCKED -> AVAILABLE if ownerID holds the seat
func (r *PostgresSeatRepository) MarkAvailable(ctx context.Context, seatID, ownerID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.mark_available")
	defer span.End()

	span.SetAttributes(
		attribute.String("seat_id", seatID),
		attribute.String("owner_id", ownerID),
	)

	query := `
		UPDATE seats
		SET status = $1, locked_by = NULL, locked_at = NULL, lock_expires_at = NULL, reservation_id = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND locked_by = $4
	`

	tag, err := r.pool.Exec(ctx, query,
		domain.SeatStatusAvailable, seatID, domain.SeatStatusLocked, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to mark seat available: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

// MarkReserved moves LOCKED -> RESERVED if ownerID holds the seat
func (r *PostgresSeatRepository) MarkReserved(ctx context.Context, seatID, ownerID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.mark_reserved")
	defer span.End()

	span.SetAttributes(
		attribute.String("seat_id", seatID),
		attribute.String("owner_id", ownerID),
	)

	// reservation_id is left in place so a repeated confirm can
	// recognize its own earlier success.
	query := `
		UPDATE seats
		SET status = $1, locked_by = NULL, locked_at = NULL, lock_expires_at = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND locked_by = $4
	`

	tag, err := r.pool.Exec(ctx, query,
		domain.SeatStatusReserved, seatID, domain.SeatStatusLocked, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to mark seat reserved: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

// AssociateReservation stamps reservationID on seats LOCKED by ownerID
func (r *PostgresSeatRepository) AssociateReservation(ctx context.Context, seatIDs []string, ownerID, reservationID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.associate_reservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	query := `
		UPDATE seats
		SET reservation_id = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = $3 AND locked_by = $4
	`

	tag, err := r.pool.Exec(ctx, query,
		reservationID, seatIDs, domain.SeatStatusLocked, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to associate reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected(), nil
}

// ReleaseForCompensation returns a reservation's seats to AVAILABLE
func (r *PostgresSeatRepository) ReleaseForCompensation(ctx context.Context, reservationID string, seatIDs []string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.release_for_compensation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	// Covers both seats stamped with the reservation id and seats
	// already moved to RESERVED before the failure.
	query := `
		UPDATE seats
		SET status = $1, locked_by = NULL, locked_at = NULL, lock_expires_at = NULL, reservation_id = NULL, updated_at = NOW()
		WHERE id = ANY($2) AND (reservation_id = $3 OR status = $4)
	`

	tag, err := r.pool.Exec(ctx, query,
		domain.SeatStatusAvailable, seatIDs, reservationID, domain.SeatStatusReserved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to release seats for compensation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected(), nil
}

// FindStaleLocked returns LOCKED seats whose durable lock expiry passed before now
func (r *PostgresSeatRepository) FindStaleLocked(ctx context.Context, now time.Time, limit int) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.find_stale_locked")
	defer span.End()

	query := `
		SELECT ` + seatColumns + `
		FROM seats
		WHERE status = $1 AND lock_expires_at < $2
		ORDER BY lock_expires_at ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, domain.SeatStatusLocked, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query stale locked seats: %w", err)
	}
	defer rows.Close()

	var seats []*domain.Seat
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale locked seats: %w", err)
	}

	span.SetAttributes(attribute.Int("found", len(seats)))
	span.SetStatus(codes.Ok, "")
	return seats, nil
}

// ForceAvailable moves LOCKED -> AVAILABLE only if still locked by prevOwner
func (r *PostgresSeatRepository) ForceAvailable(ctx context.Context, seatID, prevOwner string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.force_available")
	defer span.End()

	span.SetAttributes(attribute.String("seat_id", seatID))

	query := `
		UPDATE seats
		SET status = $1, locked_by = NULL, locked_at = NULL, lock_expires_at = NULL, reservation_id = NULL, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND locked_by = $4
	`

	tag, err := r.pool.Exec(ctx, query,
		domain.SeatStatusAvailable, seatID, domain.SeatStatusLocked, prevOwner)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to force seat available: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}
