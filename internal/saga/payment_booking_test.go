package saga

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/service"
)

// stubTicketService lets tests control ticket issuance outcomes
type stubTicketService struct {
	issueErr error
	issued   []string
	revoked  []string
}

func (s *stubTicketService) Issue(ctx context.Context, payment *domain.Payment, reservation *domain.Reservation) (*domain.Ticket, error) {
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	ticket := &domain.Ticket{
		ID:            uuid.New().String(),
		PaymentID:     payment.ID,
		ReservationID: reservation.ID,
		UserID:        reservation.UserID,
		SeatIDs:       reservation.SeatIDs,
		IssuedAt:      time.Now(),
	}
	s.issued = append(s.issued, ticket.ID)
	return ticket, nil
}

func (s *stubTicketService) Revoke(ctx context.Context, paymentID string) error {
	s.revoked = append(s.revoked, paymentID)
	return nil
}

type bookingFixture struct {
	seatRepo        *repository.MemorySeatRepository
	reservationRepo *repository.MemoryReservationRepository
	paymentRepo     *repository.MemoryPaymentRepository
	tickets         *stubTicketService
	orchestrator    *Orchestrator
	store           *MemoryStore
	steps           []Step
	reservation     *domain.Reservation
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	seatRepo := repository.NewMemorySeatRepository()
	reservationRepo := repository.NewMemoryReservationRepository()
	paymentRepo := repository.NewMemoryPaymentRepository()
	locks := lockstore.NewMemoryLockStore()

	seatLocks := service.NewSeatLockService(locks, seatRepo, &service.SeatLockServiceConfig{
		LockTTL: time.Minute,
	})
	reservations := service.NewReservationService(reservationRepo, seatLocks, &service.ReservationServiceConfig{
		ReservationTTL: time.Minute,
	})
	payments := service.NewPaymentService(paymentRepo)
	tickets := &stubTicketService{}

	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"seat-1", "seat-2"} {
		err := seatRepo.Create(ctx, &domain.Seat{
			ID:        id,
			EventID:   "event-1",
			RowLabel:  "A",
			Status:    domain.SeatStatusAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("Failed to create seat: %v", err)
		}
	}

	reservation, err := reservations.Create(ctx, &dto.CreateReservationRequest{
		UserID:      "user-1",
		EventID:     "event-1",
		SeatIDs:     []string{"seat-1", "seat-2"},
		TotalAmount: 120,
	})
	if err != nil {
		t.Fatalf("Failed to create reservation: %v", err)
	}

	store := NewMemoryStore()
	return &bookingFixture{
		seatRepo:        seatRepo,
		reservationRepo: reservationRepo,
		paymentRepo:     paymentRepo,
		tickets:         tickets,
		store:           store,
		orchestrator: NewOrchestrator(&OrchestratorConfig{
			Store:       store,
			BackoffBase: time.Millisecond,
			BackoffMax:  5 * time.Millisecond,
			StepTimeout: time.Second,
		}),
		steps: NewPaymentBookingSteps(PaymentBookingDeps{
			Payments:     payments,
			Reservations: reservations,
			SeatLocks:    seatLocks,
			Tickets:      tickets,
		}),
		reservation: reservation,
	}
}

func (f *bookingFixture) payload(t *testing.T) []byte {
	t.Helper()
	payload, err := encodePayload(&PaymentBookingPayload{
		ReservationID: f.reservation.ID,
		UserID:        "user-1",
		EventID:       "event-1",
		SeatIDs:       []string{"seat-1", "seat-2"},
		Amount:        120,
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	return payload
}

func TestPaymentBookingSaga_Success(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	execution, err := f.orchestrator.Execute(ctx, PaymentBookingSagaName, f.steps, f.payload(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if execution.Status != StatusCompleted {
		t.Fatalf("Expected saga COMPLETED, got %s", execution.Status)
	}

	final, err := decodePayload(execution.Payload)
	if err != nil {
		t.Fatalf("Failed to decode final payload: %v", err)
	}
	if final.PaymentID == "" {
		t.Error("Expected payment id in final payload")
	}
	if final.TicketID == "" {
		t.Error("Expected ticket id in final payload")
	}

	reservation, _ := f.reservationRepo.GetByID(ctx, f.reservation.ID)
	if reservation.Status != domain.ReservationStatusConfirmed {
		t.Errorf("Expected reservation CONFIRMED, got %s", reservation.Status)
	}

	for _, seatID := range []string{"seat-1", "seat-2"} {
		seat, _ := f.seatRepo.GetByID(ctx, seatID)
		if seat.Status != domain.SeatStatusReserved {
			t.Errorf("Seat %s: expected RESERVED, got %s", seatID, seat.Status)
		}
	}

	payment, err := f.paymentRepo.GetByReservationID(ctx, f.reservation.ID)
	if err != nil {
		t.Fatalf("Expected payment record: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("Expected payment COMPLETED, got %s", payment.Status)
	}

	if len(f.tickets.issued) != 1 {
		t.Errorf("Expected 1 issued ticket, got %d", len(f.tickets.issued))
	}
}

func TestPaymentBookingSaga_TicketFailureCompensatesEverything(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	// A 422 from the ticket collaborator is not retryable.
	f.tickets.issueErr = &domain.RemoteError{
		Service:    "ticket",
		StatusCode: http.StatusUnprocessableEntity,
		Message:    "bad seat map",
	}

	execution, err := f.orchestrator.Execute(ctx, PaymentBookingSagaName, f.steps, f.payload(t))
	if !errors.Is(err, ErrSagaFailed) {
		t.Fatalf("Expected ErrSagaFailed, got %v", err)
	}
	if execution.Status != StatusCompensated {
		t.Fatalf("Expected saga COMPENSATED, got %s", execution.Status)
	}

	// Every forward effect is undone.
	reservation, _ := f.reservationRepo.GetByID(ctx, f.reservation.ID)
	if reservation.Status != domain.ReservationStatusCancelled {
		t.Errorf("Expected reservation CANCELLED, got %s", reservation.Status)
	}

	for _, seatID := range []string{"seat-1", "seat-2"} {
		seat, _ := f.seatRepo.GetByID(ctx, seatID)
		if seat.Status != domain.SeatStatusAvailable {
			t.Errorf("Seat %s: expected AVAILABLE, got %s", seatID, seat.Status)
		}
	}

	payment, err := f.paymentRepo.GetByReservationID(ctx, f.reservation.ID)
	if err != nil {
		t.Fatalf("Expected payment record: %v", err)
	}
	if payment.Status != domain.PaymentStatusRefunded {
		t.Errorf("Expected payment REFUNDED, got %s", payment.Status)
	}
}

func TestPaymentBookingSaga_ChargeIsIdempotentOnReplay(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	first, err := f.orchestrator.Execute(ctx, PaymentBookingSagaName, f.steps, f.payload(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Replaying a finished saga must not charge again.
	resumed, err := f.orchestrator.Resume(ctx, first.ID, f.steps)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Status != StatusCompleted {
		t.Errorf("Expected COMPLETED, got %s", resumed.Status)
	}

	payment, _ := f.paymentRepo.GetByReservationID(ctx, f.reservation.ID)
	if payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("Expected payment still COMPLETED, got %s", payment.Status)
	}
	if len(f.tickets.issued) != 1 {
		t.Errorf("Expected exactly one ticket, got %d", len(f.tickets.issued))
	}
}
