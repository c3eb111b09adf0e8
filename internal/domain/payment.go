package domain

import (
	"time"
)

// Payment status values
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment represents a charge against a reservation
type Payment struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsCompleted returns true when the charge succeeded and was not refunded
func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// Ticket represents an issued ticket for a completed booking
type Ticket struct {
	ID            string    `json:"id"`
	PaymentID     string    `json:"payment_id"`
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	SeatIDs       []string  `json:"seat_ids"`
	IssuedAt      time.Time `json:"issued_at"`
}
