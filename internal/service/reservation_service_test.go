package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/repository"
)

type reservationFixture struct {
	svc             ReservationService
	seatLocks       SeatLockService
	seatRepo        *repository.MemorySeatRepository
	reservationRepo *repository.MemoryReservationRepository
	locks           *lockstore.MemoryLockStore
}

func newReservationFixture(t *testing.T, seatIDs ...string) *reservationFixture {
	t.Helper()

	seatRepo := repository.NewMemorySeatRepository()
	reservationRepo := repository.NewMemoryReservationRepository()
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

	seatLocks := NewSeatLockService(locks, seatRepo, &SeatLockServiceConfig{LockTTL: time.Minute})
	svc := NewReservationService(reservationRepo, seatLocks, &ReservationServiceConfig{
		ReservationTTL: 15 * time.Minute,
	})

	return &reservationFixture{
		svc:             svc,
		seatLocks:       seatLocks,
		seatRepo:        seatRepo,
		reservationRepo: reservationRepo,
		locks:           locks,
	}
}

func TestReservationService_Create(t *testing.T) {
	f := newReservationFixture(t, "seat-1", "seat-2")
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID:      "user-1",
		EventID:     "event-1",
		SeatIDs:     []string{"seat-1", "seat-2"},
		TotalAmount: 80,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ReservationStatusPending, reservation.Status)
	assert.True(t, reservation.ExpiresAt.After(time.Now()))

	for _, id := range []string{"seat-1", "seat-2"} {
		seat, err := f.seatRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.SeatStatusLocked, seat.Status)
		assert.Equal(t, reservation.ID, seat.ReservationID)
	}
}

func TestReservationService_CreateValidation(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)

	_, err = f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", SeatIDs: []string{"seat-1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)

	_, err = f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSeatIDs)

	_, err = f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"}, TotalAmount: -1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestReservationService_CreateIdempotency(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	req := &dto.CreateReservationRequest{
		UserID:         "user-1",
		EventID:        "event-1",
		SeatIDs:        []string{"seat-1"},
		IdempotencyKey: "key-123",
	}

	first, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same key must return the original reservation")
}

func TestReservationService_CreateRejectsOverlap(t *testing.T) {
	f := newReservationFixture(t, "seat-1", "seat-2")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-2", EventID: "event-1", SeatIDs: []string{"seat-1", "seat-2"},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateReservation)
}

func TestReservationService_CreateSameUserOverlapIsRetry(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	first, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)

	again, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "same user's retry must return the pending reservation")
}

func TestReservationService_ConcurrentCreateSingleWinner(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	const racers = 20
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
				UserID:  string(rune('a'+n)) + "-user",
				EventID: "event-1",
				SeatIDs: []string{"seat-1"},
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one request may win the seat")
}

func TestReservationService_ConfirmIsIdempotent(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, confirmed.Status)

	again, err := f.svc.Confirm(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, again.Status)
}

func TestReservationService_ConfirmExpiredFails(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	svc := NewReservationService(f.reservationRepo, f.seatLocks, &ReservationServiceConfig{
		ReservationTTL: -time.Minute,
	})
	reservation, err := svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, reservation.ID)
	assert.ErrorIs(t, err, domain.ErrReservationExpired)
}

func TestReservationService_CancelReleasesSeats(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)

	// The wrong user cannot cancel.
	err = f.svc.Cancel(ctx, reservation.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	require.NoError(t, f.svc.Cancel(ctx, reservation.ID, "user-1"))

	stored, err := f.reservationRepo.GetByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, stored.Status)

	seat, err := f.seatRepo.GetByID(ctx, "seat-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusAvailable, seat.Status)
}

func TestReservationService_CancelForCompensation(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)

	// Works from CONFIRMED, unlike a user cancel.
	_, err = f.svc.Confirm(ctx, reservation.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelForCompensation(ctx, reservation.ID))

	stored, err := f.reservationRepo.GetByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, stored.Status)

	// Idempotent.
	require.NoError(t, f.svc.CancelForCompensation(ctx, reservation.ID))
}

func TestReservationService_ExpireSkipsConfirmed(t *testing.T) {
	f := newReservationFixture(t, "seat-1")
	ctx := context.Background()

	reservation, err := f.svc.Create(ctx, &dto.CreateReservationRequest{
		UserID: "user-1", EventID: "event-1", SeatIDs: []string{"seat-1"},
	})
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, reservation.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Expire(ctx, reservation.ID))

	stored, err := f.reservationRepo.GetByID(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, stored.Status, "confirmed reservation must survive expiry")
}
