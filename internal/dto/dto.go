package dto

import (
	"time"

	"github.com/ticketrush/reservation-core/internal/domain"
)

// CreateReservationRequest is the payload for creating a reservation
type CreateReservationRequest struct {
	UserID         string   `json:"user_id" binding:"required"`
	EventID        string   `json:"event_id" binding:"required"`
	SeatIDs        []string `json:"seat_ids" binding:"required,min=1"`
	TotalAmount    float64  `json:"total_amount"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// ReservationResponse is the API shape of a reservation
type ReservationResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	EventID     string    `json:"event_id"`
	SeatIDs     []string  `json:"seat_ids"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToReservationResponse converts a domain reservation
func ToReservationResponse(r *domain.Reservation) *ReservationResponse {
	return &ReservationResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		EventID:     r.EventID,
		SeatIDs:     r.SeatIDs,
		Status:      r.Status,
		TotalAmount: r.TotalAmount,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}

// AcquireSeatsRequest is the payload for locking seats
type AcquireSeatsRequest struct {
	OwnerID string   `json:"owner_id" binding:"required"`
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}

// ReleaseSeatsRequest is the payload for releasing seat locks
type ReleaseSeatsRequest struct {
	OwnerID string   `json:"owner_id" binding:"required"`
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}

// ExtendSeatsRequest is the payload for extending seat locks
type ExtendSeatsRequest struct {
	OwnerID string   `json:"owner_id" binding:"required"`
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}

// ConfirmBookingRequest triggers the payment booking saga
type ConfirmBookingRequest struct {
	ReservationID string `json:"reservation_id" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

// ConfirmBookingResponse reports the saga outcome
type ConfirmBookingResponse struct {
	SagaID        string `json:"saga_id"`
	ReservationID string `json:"reservation_id"`
	PaymentID     string `json:"payment_id,omitempty"`
	TicketID      string `json:"ticket_id,omitempty"`
	Status        string `json:"status"`
}

// SagaStatusResponse is the API shape of a saga execution
type SagaStatusResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Status    string             `json:"status"`
	Steps     []SagaStepResponse `json:"steps"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SagaStepResponse is the API shape of a saga step record
type SagaStepResponse struct {
	Name      string `json:"name"`
	StepOrder int    `json:"step_order"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}
