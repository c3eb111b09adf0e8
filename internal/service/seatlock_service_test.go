package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/repository"
)

func newSeatLockFixture(t *testing.T, seatIDs ...string) (SeatLockService, *repository.MemorySeatRepository, *lockstore.MemoryLockStore) {
	t.Helper()

	seatRepo := repository.NewMemorySeatRepository()
	locks := lockstore.NewMemoryLockStore()

	now := time.Now()
	for _, id := range seatIDs {
		require.NoError(t, seatRepo.Create(context.Background(), &domain.Seat{
			ID:        id,
			EventID:   "event-1",
			RowLabel:  "A",
			Status:    domain.SeatStatusAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	svc := NewSeatLockService(locks, seatRepo, &SeatLockServiceConfig{LockTTL: time.Minute})
	return svc, seatRepo, locks
}

func mustAcquire(t *testing.T, svc SeatLockService, ownerID string, seatIDs ...string) {
	t.Helper()
	_, err := svc.AcquireSeats(context.Background(), ownerID, seatIDs)
	require.NoError(t, err)
}

func TestSeatLockService_AcquireMarksSeatsLocked(t *testing.T) {
	svc, seatRepo, locks := newSeatLockFixture(t, "seat-1", "seat-2")
	ctx := context.Background()

	expiresAt, err := svc.AcquireSeats(ctx, "owner-a", []string{"seat-1", "seat-2"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	for _, id := range []string{"seat-1", "seat-2"} {
		seat, err := seatRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SeatStatusLocked, seat.Status)
		assert.Equal(t, "owner-a", seat.LockedBy)
		require.NotNil(t, seat.LockExpiresAt)
		assert.Equal(t, expiresAt.Unix(), seat.LockExpiresAt.Unix())

		owner, err := locks.Owner(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "owner-a", owner)
	}
}

func TestSeatLockService_AcquireAllOrNothing(t *testing.T) {
	svc, seatRepo, locks := newSeatLockFixture(t, "seat-1", "seat-2", "seat-3")
	ctx := context.Background()

	// Another owner already holds seat-3.
	ok, err := locks.Acquire(ctx, "seat-3", "owner-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.AcquireSeats(ctx, "owner-a", []string{"seat-1", "seat-2", "seat-3"})
	require.ErrorIs(t, err, domain.ErrSeatUnavailable)

	// The partial acquisition was rolled back.
	for _, id := range []string{"seat-1", "seat-2"} {
		seat, err := seatRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status, "seat %s must be rolled back", id)

		owner, err := locks.Owner(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, owner, "lock on %s must be released", id)
	}
}

func TestSeatLockService_AcquireIsIdempotentForSameOwner(t *testing.T) {
	svc, _, _ := newSeatLockFixture(t, "seat-1")

	mustAcquire(t, svc, "owner-a", "seat-1")
	// A retried request extends the existing hold instead of failing.
	mustAcquire(t, svc, "owner-a", "seat-1")
}

func TestSeatLockService_ReleaseOnlyIfOwner(t *testing.T) {
	svc, seatRepo, locks := newSeatLockFixture(t, "seat-1")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1")

	// A stranger's release changes nothing.
	require.NoError(t, svc.ReleaseSeats(ctx, "owner-b", []string{"seat-1"}))
	seat, err := seatRepo.GetByID(ctx, "seat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusLocked, seat.Status)
	owner, _ := locks.Owner(ctx, "seat-1")
	assert.Equal(t, "owner-a", owner)

	// The owner's release frees everything.
	require.NoError(t, svc.ReleaseSeats(ctx, "owner-a", []string{"seat-1"}))
	seat, err = seatRepo.GetByID(ctx, "seat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
	owner, _ = locks.Owner(ctx, "seat-1")
	assert.Empty(t, owner)
}

func TestSeatLockService_ExtendFailsForNonOwner(t *testing.T) {
	svc, _, _ := newSeatLockFixture(t, "seat-1")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1")
	_, err := svc.ExtendSeats(ctx, "owner-a", []string{"seat-1"})
	require.NoError(t, err)

	_, err = svc.ExtendSeats(ctx, "owner-b", []string{"seat-1"})
	assert.ErrorIs(t, err, domain.ErrLockNotOwned)
}

func TestSeatLockService_ExtendRefreshesSeatExpiry(t *testing.T) {
	svc, seatRepo, _ := newSeatLockFixture(t, "seat-1")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1")

	// Backdate the durable expiry so the refresh is observable.
	past := time.Now().Add(-time.Hour)
	ok, err := seatRepo.ExtendLocked(ctx, "seat-1", "owner-a", past)
	require.NoError(t, err)
	require.True(t, ok)

	expiresAt, err := svc.ExtendSeats(ctx, "owner-a", []string{"seat-1"})
	require.NoError(t, err)

	seat, err := seatRepo.GetByID(ctx, "seat-1")
	require.NoError(t, err)
	require.NotNil(t, seat.LockExpiresAt)
	assert.Equal(t, expiresAt.Unix(), seat.LockExpiresAt.Unix())
	assert.False(t, seat.LockExpired(time.Now()))
}

func TestSeatLockService_ConfirmSeats(t *testing.T) {
	svc, seatRepo, locks := newSeatLockFixture(t, "seat-1", "seat-2")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1", "seat-2")
	require.NoError(t, svc.AssociateReservation(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"}))
	require.NoError(t, svc.ConfirmSeats(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"}))

	for _, id := range []string{"seat-1", "seat-2"} {
		seat, err := seatRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SeatStatusReserved, seat.Status)
		assert.Equal(t, "res-1", seat.ReservationID)

		// A RESERVED row carries no lock owner.
		assert.Empty(t, seat.LockedBy)
		assert.Nil(t, seat.LockedAt)
		assert.Nil(t, seat.LockExpiresAt)

		// Locks are dropped once the seat is durable.
		owner, err := locks.Owner(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, owner)
	}

	// A retried confirmation is accepted.
	require.NoError(t, svc.ConfirmSeats(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"}))
}

func TestSeatLockService_ConfirmRejectsForeignReservation(t *testing.T) {
	svc, _, _ := newSeatLockFixture(t, "seat-1")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1")
	require.NoError(t, svc.AssociateReservation(ctx, "owner-a", "res-1", []string{"seat-1"}))
	require.NoError(t, svc.ConfirmSeats(ctx, "owner-a", "res-1", []string{"seat-1"}))

	err := svc.ConfirmSeats(ctx, "owner-a", "res-2", []string{"seat-1"})
	assert.ErrorIs(t, err, domain.ErrSeatStateConflict)
}

func TestSeatLockService_AssociateFailsWhenLockLost(t *testing.T) {
	svc, _, _ := newSeatLockFixture(t, "seat-1", "seat-2")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1")

	// seat-2 was never acquired, so the stamp covers only one row.
	err := svc.AssociateReservation(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"})
	assert.ErrorIs(t, err, domain.ErrSeatStateConflict)
}

func TestSeatLockService_ReleaseForCompensationIsIdempotent(t *testing.T) {
	svc, seatRepo, _ := newSeatLockFixture(t, "seat-1", "seat-2")
	ctx := context.Background()

	mustAcquire(t, svc, "owner-a", "seat-1", "seat-2")
	require.NoError(t, svc.AssociateReservation(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"}))
	// seat-1 made it to RESERVED before the failure, seat-2 did not.
	require.NoError(t, svc.ConfirmSeats(ctx, "owner-a", "res-1", []string{"seat-1"}))

	require.NoError(t, svc.ReleaseForCompensation(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"}))

	for _, id := range []string{"seat-1", "seat-2"} {
		seat, err := seatRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
		assert.Empty(t, seat.ReservationID)
	}

	// Running it again changes nothing and reports no error.
	require.NoError(t, svc.ReleaseForCompensation(ctx, "owner-a", "res-1", []string{"seat-1", "seat-2"}))
}
