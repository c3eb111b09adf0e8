package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// ReservationService defines the reservation lifecycle
type ReservationService interface {
	// Create locks the requested seats and opens a PENDING
	// reservation. A repeated idempotency key returns the
	// reservation created by the first request.
	Create(ctx context.Context, req *dto.CreateReservationRequest) (*domain.Reservation, error)

	// GetByID retrieves a reservation
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// Confirm moves PENDING -> CONFIRMED. Confirming an already
	// CONFIRMED reservation succeeds; an expired one fails.
	Confirm(ctx context.Context, id string) (*domain.Reservation, error)

	// Cancel moves PENDING -> CANCELLED on the user's request and
	// releases the seats.
	Cancel(ctx context.Context, id, userID string) error

	// CancelForCompensation undoes a reservation during saga
	// compensation. Works from PENDING or CONFIRMED and is
	// idempotent.
	CancelForCompensation(ctx context.Context, id string) error

	// Expire moves a PENDING reservation past its deadline to
	// EXPIRED and releases the seats.
	Expire(ctx context.Context, id string) error

	// FindExpired returns PENDING reservations past their deadline.
	FindExpired(ctx context.Context, limit int) ([]*domain.Reservation, error)
}

// ReservationServiceConfig contains configuration for the reservation service
type ReservationServiceConfig struct {
	ReservationTTL time.Duration
}

type reservationService struct {
	reservationRepo repository.ReservationRepository
	seatLocks       SeatLockService
	reservationTTL  time.Duration
}

// NewReservationService creates a new reservation service
func NewReservationService(
	reservationRepo repository.ReservationRepository,
	seatLocks SeatLockService,
	cfg *ReservationServiceConfig,
) ReservationService {
	ttl := 15 * time.Minute
	if cfg != nil && cfg.ReservationTTL > 0 {
		ttl = cfg.ReservationTTL
	}
	return &reservationService{
		reservationRepo: reservationRepo,
		seatLocks:       seatLocks,
		reservationTTL:  ttl,
	}
}

func (s *reservationService) Create(ctx context.Context, req *dto.CreateReservationRequest) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("event_id", req.EventID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	if req.UserID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req.EventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	if len(req.SeatIDs) == 0 {
		return nil, domain.ErrInvalidSeatIDs
	}
	if req.TotalAmount < 0 {
		return nil, domain.ErrInvalidAmount
	}

	// A repeated request with the same key gets the original result.
	if req.IdempotencyKey != "" {
		existing, err := s.reservationRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrReservationNotFound) {
			return nil, err
		}
	}

	overlapping, err := s.reservationRepo.FindActiveForSeats(ctx, req.EventID, req.SeatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	now := time.Now()
	for _, other := range overlapping {
		if other.Status == domain.ReservationStatusPending && other.IsExpired(now) {
			// Stale row the reconciler has not swept yet.
			continue
		}
		if other.UserID == req.UserID && other.Status == domain.ReservationStatusPending {
			// The same user asking again is a retry, not a conflict.
			return other, nil
		}
		return nil, domain.ErrDuplicateReservation
	}

	if _, err := s.seatLocks.AcquireSeats(ctx, req.UserID, req.SeatIDs); err != nil {
		return nil, err
	}

	now = time.Now()
	reservation := &domain.Reservation{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		EventID:        req.EventID,
		SeatIDs:        req.SeatIDs,
		Status:         domain.ReservationStatusPending,
		TotalAmount:    req.TotalAmount,
		IdempotencyKey: req.IdempotencyKey,
		ExpiresAt:      now.Add(s.reservationTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.reservationRepo.Create(ctx, reservation); err != nil {
		// The locks are useless without a reservation row.
		if relErr := s.seatLocks.ReleaseSeats(ctx, req.UserID, req.SeatIDs); relErr != nil {
			logger.Get().Warn("failed to release seats after create failure",
				zap.String("user_id", req.UserID), zap.Error(relErr))
		}
		if errors.Is(err, domain.ErrDuplicateReservation) && req.IdempotencyKey != "" {
			// Lost the insert race on the idempotency key.
			return s.reservationRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.seatLocks.AssociateReservation(ctx, req.UserID, reservation.ID, req.SeatIDs); err != nil {
		// A seat slipped away between locking and stamping. Undo.
		s.undoCreate(ctx, reservation)
		return nil, err
	}

	logger.Get().Info("reservation created",
		zap.String("reservation_id", reservation.ID),
		zap.String("user_id", req.UserID),
		zap.Int("seats", len(req.SeatIDs)))

	span.SetStatus(codes.Ok, "")
	return reservation, nil
}

func (s *reservationService) undoCreate(ctx context.Context, reservation *domain.Reservation) {
	log := logger.Get()
	if _, err := s.reservationRepo.UpdateStatus(ctx, reservation.ID,
		domain.ReservationStatusPending, domain.ReservationStatusCancelled, time.Now()); err != nil {
		log.Warn("failed to cancel reservation during create rollback",
			zap.String("reservation_id", reservation.ID), zap.Error(err))
	}
	if err := s.seatLocks.ReleaseSeats(ctx, reservation.UserID, reservation.SeatIDs); err != nil {
		log.Warn("failed to release seats during create rollback",
			zap.String("reservation_id", reservation.ID), zap.Error(err))
	}
}

func (s *reservationService) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.reservationRepo.GetByID(ctx, id)
}

func (s *reservationService) Confirm(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))

	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch reservation.Status {
	case domain.ReservationStatusConfirmed:
		return reservation, nil
	case domain.ReservationStatusCancelled, domain.ReservationStatusExpired:
		return nil, fmt.Errorf("reservation %s is %s: %w", id, reservation.Status, domain.ErrReservationConflict)
	}

	if reservation.IsExpired(time.Now()) {
		return nil, domain.ErrReservationExpired
	}

	ok, err := s.reservationRepo.UpdateStatus(ctx, id,
		domain.ReservationStatusPending, domain.ReservationStatusConfirmed, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !ok {
		// Someone else moved the reservation; re-read and decide.
		current, err := s.reservationRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.ReservationStatusConfirmed {
			return current, nil
		}
		return nil, fmt.Errorf("reservation %s is %s: %w", id, current.Status, domain.ErrReservationConflict)
	}

	logger.Get().Info("reservation confirmed", zap.String("reservation_id", id))

	span.SetStatus(codes.Ok, "")
	return s.reservationRepo.GetByID(ctx, id)
}

func (s *reservationService) Cancel(ctx context.Context, id, userID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))

	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation.UserID != userID {
		return domain.ErrReservationNotFound
	}

	ok, err := s.reservationRepo.UpdateStatus(ctx, id,
		domain.ReservationStatusPending, domain.ReservationStatusCancelled, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !ok {
		return fmt.Errorf("reservation %s is not pending: %w", id, domain.ErrReservationConflict)
	}

	if err := s.seatLocks.ReleaseSeats(ctx, reservation.UserID, reservation.SeatIDs); err != nil {
		logger.Get().Warn("failed to release seats on cancel",
			zap.String("reservation_id", id), zap.Error(err))
	}

	logger.Get().Info("reservation cancelled",
		zap.String("reservation_id", id), zap.String("user_id", userID))

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *reservationService) CancelForCompensation(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cancel_for_compensation")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))

	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch reservation.Status {
	case domain.ReservationStatusCancelled, domain.ReservationStatusExpired:
		// Already undone; a retried compensation is a no-op.
		return nil
	}

	now := time.Now()
	ok, err := s.reservationRepo.UpdateStatus(ctx, id,
		reservation.Status, domain.ReservationStatusCancelled, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !ok {
		// Re-read; a concurrent mover may have done our work.
		current, err := s.reservationRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == domain.ReservationStatusCancelled ||
			current.Status == domain.ReservationStatusExpired {
			return nil
		}
		return fmt.Errorf("reservation %s is %s: %w", id, current.Status, domain.ErrReservationConflict)
	}

	logger.Get().Info("reservation cancelled for compensation",
		zap.String("reservation_id", id),
		zap.String("previous_status", reservation.Status))

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *reservationService) Expire(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.expire")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))

	reservation, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.reservationRepo.UpdateStatus(ctx, id,
		domain.ReservationStatusPending, domain.ReservationStatusExpired, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !ok {
		// Confirmed or cancelled in the meantime; nothing to expire.
		return nil
	}

	if err := s.seatLocks.ReleaseSeats(ctx, reservation.UserID, reservation.SeatIDs); err != nil {
		logger.Get().Warn("failed to release seats on expiry",
			zap.String("reservation_id", id), zap.Error(err))
	}

	logger.Get().Info("reservation expired", zap.String("reservation_id", id))

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *reservationService) FindExpired(ctx context.Context, limit int) ([]*domain.Reservation, error) {
	return s.reservationRepo.FindExpired(ctx, time.Now(), limit)
}
