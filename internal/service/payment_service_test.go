package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/repository"
)

func TestPaymentService_Charge(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo)
	ctx := context.Background()

	payment, err := svc.Charge(ctx, "res-1", "user-1", 99.5, "USD")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, "res-1", payment.ReservationID)
	assert.Equal(t, 99.5, payment.Amount)
}

func TestPaymentService_ChargeIsIdempotent(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo)
	ctx := context.Background()

	first, err := svc.Charge(ctx, "res-1", "user-1", 50, "USD")
	require.NoError(t, err)

	second, err := svc.Charge(ctx, "res-1", "user-1", 50, "USD")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "a second charge must return the existing payment")
}

func TestPaymentService_ChargeRejectsNegativeAmount(t *testing.T) {
	svc := NewPaymentService(repository.NewMemoryPaymentRepository())

	_, err := svc.Charge(context.Background(), "res-1", "user-1", -1, "USD")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPaymentService_Refund(t *testing.T) {
	repo := repository.NewMemoryPaymentRepository()
	svc := NewPaymentService(repo)
	ctx := context.Background()

	payment, err := svc.Charge(ctx, "res-1", "user-1", 50, "USD")
	require.NoError(t, err)

	require.NoError(t, svc.Refund(ctx, payment.ID))

	refunded, err := repo.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)

	// Refunding twice is a no-op.
	require.NoError(t, svc.Refund(ctx, payment.ID))
}

func TestPaymentService_RefundUnknownPayment(t *testing.T) {
	svc := NewPaymentService(repository.NewMemoryPaymentRepository())

	err := svc.Refund(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
