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
	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// PaymentService handles charges and refunds against reservations
type PaymentService interface {
	// Charge completes a payment for the reservation. Charging a
	// reservation that already has a COMPLETED payment returns that
	// payment unchanged.
	Charge(ctx context.Context, reservationID, userID string, amount float64, currency string) (*domain.Payment, error)

	// Refund moves COMPLETED -> REFUNDED. Refunding an already
	// refunded payment is a no-op; refunding a payment that never
	// completed is also a no-op.
	Refund(ctx context.Context, paymentID string) error

	// GetByID retrieves a payment
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
}

// NewPaymentService creates a new payment service
func NewPaymentService(paymentRepo repository.PaymentRepository) PaymentService {
	return &paymentService{paymentRepo: paymentRepo}
}

func (s *paymentService) Charge(ctx context.Context, reservationID, userID string, amount float64, currency string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.charge")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", reservationID),
		attribute.Float64("amount", amount),
	)

	if amount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if currency == "" {
		currency = "USD"
	}

	existing, err := s.paymentRepo.GetByReservationID(ctx, reservationID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.PaymentStatusCompleted:
			return existing, nil
		case domain.PaymentStatusPending:
			// An earlier attempt stopped between create and complete.
			return s.complete(ctx, existing)
		}
		// FAILED or REFUNDED payments do not block a fresh charge.
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:            uuid.New().String(),
		ReservationID: reservationID,
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		Status:        domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return s.complete(ctx, payment)
}

func (s *paymentService) complete(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	ok, err := s.paymentRepo.UpdateStatus(ctx, payment.ID,
		domain.PaymentStatusPending, domain.PaymentStatusCompleted, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.paymentRepo.GetByID(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if current.IsCompleted() {
			return current, nil
		}
		return nil, fmt.Errorf("payment %s is %s: %w", payment.ID, current.Status, domain.ErrPaymentDeclined)
	}

	logger.Get().Info("payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("reservation_id", payment.ReservationID),
		zap.Float64("amount", payment.Amount))

	return s.paymentRepo.GetByID(ctx, payment.ID)
}

func (s *paymentService) Refund(ctx context.Context, paymentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.refund")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	switch payment.Status {
	case domain.PaymentStatusRefunded:
		return nil
	case domain.PaymentStatusCompleted:
		// fallthrough to the refund transition below
	default:
		// Never completed, so there is nothing to return.
		return nil
	}

	ok, err := s.paymentRepo.UpdateStatus(ctx, paymentID,
		domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !ok {
		current, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if current.Status == domain.PaymentStatusRefunded {
			return nil
		}
		return fmt.Errorf("payment %s is %s: %w", paymentID, current.Status, domain.ErrPaymentDeclined)
	}

	logger.Get().Info("payment refunded", zap.String("payment_id", paymentID))

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *paymentService) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}
