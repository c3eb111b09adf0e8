package domain

import (
	"time"
)

// Seat status values
const (
	SeatStatusAvailable = "AVAILABLE"
	SeatStatusLocked    = "LOCKED"
	SeatStatusReserved  = "RESERVED"
	SeatStatusSold      = "SOLD"
)

// Seat represents a seat entity. The lock store arbitrates current
// ownership; the seat row records durable status and history. A seat
// in RESERVED or SOLD carries no lock owner.
type Seat struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	RowLabel      string     `json:"row_label"`
	Number        int        `json:"number"`
	Status        string     `json:"status"`
	LockedBy      string     `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
	ReservationID string     `json:"reservation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsAvailable returns true when the seat can be locked
func (s *Seat) IsAvailable() bool {
	return s.Status == SeatStatusAvailable
}

// IsLockedBy returns true when the seat is locked by the given owner
func (s *Seat) IsLockedBy(ownerID string) bool {
	return s.Status == SeatStatusLocked && s.LockedBy == ownerID
}

// LockExpired returns true when the seat sits in LOCKED past its
// durable lock expiry
func (s *Seat) LockExpired(now time.Time) bool {
	if s.Status != SeatStatusLocked || s.LockExpiresAt == nil {
		return false
	}
	return now.After(*s.LockExpiresAt)
}
