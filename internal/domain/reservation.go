package domain

import (
	"time"
)

// Reservation status values
const (
	ReservationStatusPending   = "PENDING"
	ReservationStatusConfirmed = "CONFIRMED"
	ReservationStatusCancelled = "CANCELLED"
	ReservationStatusExpired   = "EXPIRED"
)

// Reservation represents a user's hold on a set of seats.
// A PENDING reservation expires at ExpiresAt unless confirmed first.
type Reservation struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	EventID        string    `json:"event_id"`
	SeatIDs        []string  `json:"seat_ids"`
	Status         string    `json:"status"`
	TotalAmount    float64   `json:"total_amount"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsPending returns true when the reservation can still be confirmed or cancelled
func (r *Reservation) IsPending() bool {
	return r.Status == ReservationStatusPending
}

// IsExpired returns true when a PENDING reservation has passed its deadline
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationStatusPending && now.After(r.ExpiresAt)
}

// HasSeat returns true when the reservation covers the given seat
func (r *Reservation) HasSeat(seatID string) bool {
	for _, id := range r.SeatIDs {
		if id == seatID {
			return true
		}
	}
	return false
}
