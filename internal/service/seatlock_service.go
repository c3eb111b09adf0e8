package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// SeatLockService coordinates the lock store and the seat table.
// The lock store arbitrates who currently owns a seat; the seat table
// records durable state for queries and recovery.
type SeatLockService interface {
	// AcquireSeats locks all seats for ownerID or none of them.
	// A seat already locked by the same owner has its TTL extended.
	// Returns when the locks expire.
	AcquireSeats(ctx context.Context, ownerID string, seatIDs []string) (time.Time, error)

	// ReleaseSeats releases seats held by ownerID. Seats the owner no
	// longer holds are skipped.
	ReleaseSeats(ctx context.Context, ownerID string, seatIDs []string) error

	// ExtendSeats refreshes both the lock-store TTL and the durable
	// seat expiry on every seat or fails. Returns the new expiry.
	ExtendSeats(ctx context.Context, ownerID string, seatIDs []string) (time.Time, error)

	// AssociateReservation stamps the reservation id on every locked
	// seat. Fails when any seat is no longer locked by ownerID.
	AssociateReservation(ctx context.Context, ownerID, reservationID string, seatIDs []string) error

	// ConfirmSeats moves every seat to RESERVED and drops the locks.
	// Already-RESERVED seats of the same reservation are accepted, so
	// a retried confirmation succeeds.
	ConfirmSeats(ctx context.Context, ownerID, reservationID string, seatIDs []string) error

	// ReleaseForCompensation returns a reservation's seats to
	// AVAILABLE regardless of whether they were RESERVED yet.
	// Idempotent.
	ReleaseForCompensation(ctx context.Context, ownerID, reservationID string, seatIDs []string) error
}

// SeatLockServiceConfig contains configuration for the seat lock service
type SeatLockServiceConfig struct {
	LockTTL time.Duration
}

type seatLockService struct {
	locks    lockstore.SeatLockStore
	seatRepo repository.SeatRepository
	lockTTL  time.Duration
}

// NewSeatLockService creates a new seat lock service
func NewSeatLockService(locks lockstore.SeatLockStore, seatRepo repository.SeatRepository, cfg *SeatLockServiceConfig) SeatLockService {
	ttl := 5 * time.Minute
	if cfg != nil && cfg.LockTTL > 0 {
		ttl = cfg.LockTTL
	}
	return &seatLockService{
		locks:    locks,
		seatRepo: seatRepo,
		lockTTL:  ttl,
	}
}

func (s *seatLockService) AcquireSeats(ctx context.Context, ownerID string, seatIDs []string) (time.Time, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seatlock.acquire")
	defer span.End()

	span.SetAttributes(
		attribute.String("owner_id", ownerID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	if len(seatIDs) == 0 {
		return time.Time{}, domain.ErrInvalidSeatIDs
	}

	log := logger.Get()
	expiresAt := time.Now().Add(s.lockTTL)
	acquired := make([]string, 0, len(seatIDs))

	for _, seatID := range seatIDs {
		ok, err := s.acquireOne(ctx, seatID, ownerID, expiresAt)
		if err != nil || !ok {
			s.rollbackAcquired(ctx, ownerID, acquired)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return time.Time{}, fmt.Errorf("failed to acquire seat %s: %w", seatID, err)
			}
			log.Debug("seat acquisition lost",
				zap.String("seat_id", seatID),
				zap.String("owner_id", ownerID))
			return time.Time{}, fmt.Errorf("seat %s: %w", seatID, domain.ErrSeatUnavailable)
		}
		acquired = append(acquired, seatID)
	}

	span.SetStatus(codes.Ok, "")
	return expiresAt, nil
}

// acquireOne takes the lock and marks the seat row LOCKED. Returns
// false when another owner holds the seat.
func (s *seatLockService) acquireOne(ctx context.Context, seatID, ownerID string, expiresAt time.Time) (bool, error) {
	got, err := s.locks.Acquire(ctx, seatID, ownerID, s.lockTTL)
	if err != nil {
		return false, err
	}
	if !got {
		// The lock may already be ours from a retried request.
		owner, err := s.locks.Owner(ctx, seatID)
		if err != nil {
			return false, err
		}
		if owner != ownerID {
			return false, nil
		}
		if _, err := s.locks.Extend(ctx, seatID, ownerID, s.lockTTL); err != nil {
			return false, err
		}
		// Row already LOCKED by us from the earlier attempt; refresh
		// its durable expiry alongside the lock key.
		refreshed, err := s.seatRepo.ExtendLocked(ctx, seatID, ownerID, expiresAt)
		if err != nil {
			return false, err
		}
		return refreshed, nil
	}

	marked, err := s.seatRepo.MarkLocked(ctx, seatID, ownerID, time.Now(), expiresAt)
	if err != nil {
		s.releaseLockQuiet(ctx, seatID, ownerID)
		return false, err
	}
	if !marked {
		// Row is not AVAILABLE even though the lock was free; another
		// owner's reservation or a stale row still holds it.
		s.releaseLockQuiet(ctx, seatID, ownerID)
		return false, nil
	}
	return true, nil
}

// rollbackAcquired undoes a partial acquisition so the batch stays
// all-or-nothing.
func (s *seatLockService) rollbackAcquired(ctx context.Context, ownerID string, seatIDs []string) {
	log := logger.Get()
	for _, seatID := range seatIDs {
		if _, err := s.seatRepo.MarkAvailable(ctx, seatID, ownerID); err != nil {
			log.Warn("rollback: failed to mark seat available",
				zap.String("seat_id", seatID), zap.Error(err))
		}
		s.releaseLockQuiet(ctx, seatID, ownerID)
	}
}

func (s *seatLockService) releaseLockQuiet(ctx context.Context, seatID, ownerID string) {
	if _, err := s.locks.Release(ctx, seatID, ownerID); err != nil {
		logger.Get().Warn("failed to release seat lock",
			zap.String("seat_id", seatID), zap.Error(err))
	}
}

func (s *seatLockService) ReleaseSeats(ctx context.Context, ownerID string, seatIDs []string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.seatlock.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("owner_id", ownerID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	var firstErr error
	for _, seatID := range seatIDs {
		if _, err := s.seatRepo.MarkAvailable(ctx, seatID, ownerID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to release seat %s: %w", seatID, err)
		}
		s.releaseLockQuiet(ctx, seatID, ownerID)
	}

	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
		return firstErr
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *seatLockService) ExtendSeats(ctx context.Context, ownerID string, seatIDs []string) (time.Time, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seatlock.extend")
	defer span.End()

	span.SetAttributes(
		attribute.String("owner_id", ownerID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	expiresAt := time.Now().Add(s.lockTTL)
	for _, seatID := range seatIDs {
		ok, err := s.locks.Extend(ctx, seatID, ownerID, s.lockTTL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return time.Time{}, fmt.Errorf("failed to extend lock on seat %s: %w", seatID, err)
		}
		if !ok {
			return time.Time{}, fmt.Errorf("seat %s: %w", seatID, domain.ErrLockNotOwned)
		}
		// The seat row's expiry moves with the lock key, so recovery
		// sees the same deadline the lock store enforces.
		refreshed, err := s.seatRepo.ExtendLocked(ctx, seatID, ownerID, expiresAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return time.Time{}, fmt.Errorf("failed to extend seat %s: %w", seatID, err)
		}
		if !refreshed {
			return time.Time{}, fmt.Errorf("seat %s: %w", seatID, domain.ErrSeatStateConflict)
		}
	}

	span.SetStatus(codes.Ok, "")
	return expiresAt, nil
}

func (s *seatLockService) AssociateReservation(ctx context.Context, ownerID, reservationID string, seatIDs []string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.seatlock.associate_reservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	updated, err := s.seatRepo.AssociateReservation(ctx, seatIDs, ownerID, reservationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to associate reservation: %w", err)
	}
	if updated != int64(len(seatIDs)) {
		return fmt.Errorf("associated %d of %d seats: %w",
			updated, len(seatIDs), domain.ErrSeatStateConflict)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *seatLockService) ConfirmSeats(ctx context.Context, ownerID, reservationID string, seatIDs []string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.seatlock.confirm")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	confirmed := 0
	for _, seatID := range seatIDs {
		ok, err := s.seatRepo.MarkReserved(ctx, seatID, ownerID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to confirm seat %s: %w", seatID, err)
		}
		if !ok {
			seat, err := s.seatRepo.GetByID(ctx, seatID)
			if err != nil {
				return fmt.Errorf("failed to confirm seat %s: %w", seatID, err)
			}
			// A retried confirmation finds the seat already RESERVED
			// for the same reservation.
			if seat.Status != domain.SeatStatusReserved || seat.ReservationID != reservationID {
				return fmt.Errorf("confirmed %d of %d seats, seat %s is %s: %w",
					confirmed, len(seatIDs), seatID, seat.Status, domain.ErrSeatStateConflict)
			}
		}
		confirmed++
	}

	// RESERVED rows no longer need the lock keys.
	for _, seatID := range seatIDs {
		s.releaseLockQuiet(ctx, seatID, ownerID)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *seatLockService) ReleaseForCompensation(ctx context.Context, ownerID, reservationID string, seatIDs []string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.seatlock.release_for_compensation")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	released, err := s.seatRepo.ReleaseForCompensation(ctx, reservationID, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release seats for compensation: %w", err)
	}

	for _, seatID := range seatIDs {
		s.releaseLockQuiet(ctx, seatID, ownerID)
	}

	logger.Get().Info("released seats for compensation",
		zap.String("reservation_id", reservationID),
		zap.Int64("released", released),
		zap.Int("requested", len(seatIDs)))

	span.SetStatus(codes.Ok, "")
	return nil
}
