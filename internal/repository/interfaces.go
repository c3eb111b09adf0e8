package repository

import (
	"context"
	"time"

	"github.com/ticketrush/reservation-core/internal/domain"
)

// SeatRepository persists seat records. Every mutation is conditional
// on the previous status and owner; callers use the returned bool to
// detect concurrent updates.
type SeatRepository interface {
	Create(ctx context.Context, seat *domain.Seat) error
	GetByID(ctx context.Context, id string) (*domain.Seat, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Seat, error)

	// MarkLocked moves AVAILABLE -> LOCKED for ownerID with a durable
	// lock expiry.
	MarkLocked(ctx context.Context, seatID, ownerID string, lockedAt, expiresAt time.Time) (bool, error)

	// ExtendLocked pushes the durable lock expiry forward if ownerID
	// still holds the seat.
	ExtendLocked(ctx context.Context, seatID, ownerID string, expiresAt time.Time) (bool, error)

	// MarkAvailable moves LOCKED -> AVAILABLE if ownerID holds the
	// seat, clearing lock and reservation columns.
	MarkAvailable(ctx context.Context, seatID, ownerID string) (bool, error)

	// MarkReserved moves LOCKED -> RESERVED if ownerID holds the seat.
	// The lock columns are cleared; reservation_id stays.
	MarkReserved(ctx context.Context, seatID, ownerID string) (bool, error)

	// AssociateReservation stamps reservationID on seats LOCKED by
	// ownerID. Returns the number of seats updated.
	AssociateReservation(ctx context.Context, seatIDs []string, ownerID, reservationID string) (int64, error)

	// ReleaseForCompensation returns seats held by reservationID to
	// AVAILABLE regardless of LOCKED or RESERVED status. Idempotent;
	// returns the number of seats updated.
	ReleaseForCompensation(ctx context.Context, reservationID string, seatIDs []string) (int64, error)

	// FindStaleLocked returns LOCKED seats whose durable lock expiry
	// passed before now, oldest expiry first.
	FindStaleLocked(ctx context.Context, now time.Time, limit int) ([]*domain.Seat, error)

	// ForceAvailable moves LOCKED -> AVAILABLE only if the seat is
	// still locked by prevOwner. Used by the reconciler.
	ForceAvailable(ctx context.Context, seatID, prevOwner string) (bool, error)
}

// ReservationRepository persists reservation records
type ReservationRepository interface {
	Create(ctx context.Context, reservation *domain.Reservation) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error)

	// UpdateStatus moves a reservation from one status to another.
	// Returns false when the reservation is no longer in fromStatus.
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (bool, error)

	// FindActiveForSeats returns PENDING or CONFIRMED reservations
	// for the event that already cover one of the seats.
	FindActiveForSeats(ctx context.Context, eventID string, seatIDs []string) ([]*domain.Reservation, error)

	// FindExpired returns PENDING reservations past their deadline,
	// oldest first.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error)
}

// PaymentRepository persists payment records
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error)

	// UpdateStatus moves a payment from one status to another.
	// Returns false when the payment is no longer in fromStatus.
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (bool, error)
}
