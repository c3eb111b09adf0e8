package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/service"
)

// PaymentBookingSagaName identifies the payment booking saga
const PaymentBookingSagaName = "payment-booking"

// PaymentBookingPayload flows through the payment booking steps.
// Each step fills in the fields it produces.
type PaymentBookingPayload struct {
	ReservationID string   `json:"reservation_id"`
	UserID        string   `json:"user_id"`
	EventID       string   `json:"event_id"`
	SeatIDs       []string `json:"seat_ids"`
	Amount        float64  `json:"amount"`
	Currency      string   `json:"currency"`
	PaymentID     string   `json:"payment_id,omitempty"`
	TicketID      string   `json:"ticket_id,omitempty"`
}

func decodePayload(data []byte) (*PaymentBookingPayload, error) {
	p := &PaymentBookingPayload{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode payment booking payload: %w", err)
	}
	return p, nil
}

func encodePayload(p *PaymentBookingPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment booking payload: %w", err)
	}
	return data, nil
}

// canRetryDefault is the shared retry policy for booking steps:
// transient failures retry, conflicts and business rejections do not.
func canRetryDefault(err error) bool {
	if domain.IsConflictError(err) {
		return false
	}
	return domain.IsTransient(err)
}

const defaultStepRetries = 3

// PaymentBookingDeps are the collaborators of the payment booking saga
type PaymentBookingDeps struct {
	Payments     service.PaymentService
	Reservations service.ReservationService
	SeatLocks    service.SeatLockService
	Tickets      service.TicketService
	Notifier     service.Notifier
}

// NewPaymentBookingSteps builds the ordered step list: charge the
// payment, confirm the reservation, confirm the seats, issue the
// ticket.
func NewPaymentBookingSteps(deps PaymentBookingDeps) []Step {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = service.NewNoOpNotifier()
	}
	return []Step{
		&chargePaymentStep{payments: deps.Payments},
		&confirmReservationStep{reservations: deps.Reservations},
		&confirmSeatsStep{seatLocks: deps.SeatLocks},
		&generateTicketStep{tickets: deps.Tickets, reservations: deps.Reservations, notifier: notifier},
	}
}

// --- Step 1: charge payment ---

type chargePaymentStep struct {
	payments service.PaymentService
}

func (s *chargePaymentStep) Name() string    { return "charge-payment" }
func (s *chargePaymentStep) MaxRetries() int { return defaultStepRetries }

func (s *chargePaymentStep) CanRetry(err error) bool { return canRetryDefault(err) }

func (s *chargePaymentStep) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	p, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	payment, err := s.payments.Charge(ctx, p.ReservationID, p.UserID, p.Amount, p.Currency)
	if err != nil {
		return nil, err
	}

	p.PaymentID = payment.ID
	return encodePayload(p)
}

func (s *chargePaymentStep) Compensate(ctx context.Context, request, response []byte) error {
	p, err := decodePayload(response)
	if err != nil {
		return err
	}
	if p.PaymentID == "" {
		return nil
	}
	return s.payments.Refund(ctx, p.PaymentID)
}

// --- Step 2: confirm reservation ---

type confirmReservationStep struct {
	reservations service.ReservationService
}

func (s *confirmReservationStep) Name() string    { return "confirm-reservation" }
func (s *confirmReservationStep) MaxRetries() int { return defaultStepRetries }

func (s *confirmReservationStep) CanRetry(err error) bool { return canRetryDefault(err) }

func (s *confirmReservationStep) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	p, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	if _, err := s.reservations.Confirm(ctx, p.ReservationID); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *confirmReservationStep) Compensate(ctx context.Context, request, response []byte) error {
	p, err := decodePayload(request)
	if err != nil {
		return err
	}
	return s.reservations.CancelForCompensation(ctx, p.ReservationID)
}

// --- Step 3: confirm seats ---

type confirmSeatsStep struct {
	seatLocks service.SeatLockService
}

func (s *confirmSeatsStep) Name() string    { return "confirm-seats" }
func (s *confirmSeatsStep) MaxRetries() int { return defaultStepRetries }

func (s *confirmSeatsStep) CanRetry(err error) bool { return canRetryDefault(err) }

func (s *confirmSeatsStep) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	p, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	if err := s.seatLocks.ConfirmSeats(ctx, p.UserID, p.ReservationID, p.SeatIDs); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *confirmSeatsStep) Compensate(ctx context.Context, request, response []byte) error {
	p, err := decodePayload(request)
	if err != nil {
		return err
	}
	return s.seatLocks.ReleaseForCompensation(ctx, p.UserID, p.ReservationID, p.SeatIDs)
}

// --- Step 4: generate ticket ---

type generateTicketStep struct {
	tickets      service.TicketService
	reservations service.ReservationService
	notifier     service.Notifier
}

func (s *generateTicketStep) Name() string    { return "generate-ticket" }
func (s *generateTicketStep) MaxRetries() int { return defaultStepRetries }

func (s *generateTicketStep) CanRetry(err error) bool { return canRetryDefault(err) }

func (s *generateTicketStep) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	p, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:            p.PaymentID,
		ReservationID: p.ReservationID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
	}
	reservation := &domain.Reservation{
		ID:      p.ReservationID,
		UserID:  p.UserID,
		EventID: p.EventID,
		SeatIDs: p.SeatIDs,
	}

	ticket, err := s.tickets.Issue(ctx, payment, reservation)
	if err != nil {
		return nil, err
	}
	p.TicketID = ticket.ID

	// Confirmation notice is best effort and never fails the saga.
	s.notifier.NotifyBookingConfirmed(ctx, reservation, ticket)

	return encodePayload(p)
}

func (s *generateTicketStep) Compensate(ctx context.Context, request, response []byte) error {
	p, err := decodePayload(request)
	if err != nil {
		return err
	}
	if p.PaymentID == "" {
		return nil
	}
	return s.tickets.Revoke(ctx, p.PaymentID)
}
