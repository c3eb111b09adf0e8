package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestSeat_LockExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	seat := &Seat{Status: SeatStatusLocked, LockExpiresAt: &past}
	if !seat.LockExpired(now) {
		t.Error("Expected lock past its expiry to be expired")
	}

	live := &Seat{Status: SeatStatusLocked, LockExpiresAt: &future}
	if live.LockExpired(now) {
		t.Error("Expected lock before its expiry to not be expired")
	}

	reserved := &Seat{Status: SeatStatusReserved, LockExpiresAt: &past}
	if reserved.LockExpired(now) {
		t.Error("Expected RESERVED seat to never be expired")
	}

	unset := &Seat{Status: SeatStatusLocked}
	if unset.LockExpired(now) {
		t.Error("Expected seat without an expiry to not be expired")
	}
}

func TestReservation_IsExpired(t *testing.T) {
	now := time.Now()

	pending := &Reservation{Status: ReservationStatusPending, ExpiresAt: now.Add(-time.Minute)}
	if !pending.IsExpired(now) {
		t.Error("Expected past-deadline PENDING reservation to be expired")
	}

	confirmed := &Reservation{Status: ReservationStatusConfirmed, ExpiresAt: now.Add(-time.Minute)}
	if confirmed.IsExpired(now) {
		t.Error("Expected CONFIRMED reservation to never be expired")
	}

	fresh := &Reservation{Status: ReservationStatusPending, ExpiresAt: now.Add(time.Minute)}
	if fresh.IsExpired(now) {
		t.Error("Expected reservation before its deadline to not be expired")
	}
}

func TestIsConflictError(t *testing.T) {
	wrapped := fmt.Errorf("confirm seats: %w", ErrSeatStateConflict)
	if !IsConflictError(wrapped) {
		t.Error("Expected wrapped conflict to be detected")
	}
	if IsConflictError(errors.New("boom")) {
		t.Error("Expected plain error to not be a conflict")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient(errors.New("connection refused"))) {
		t.Error("Expected wrapped transient error to be transient")
	}
	if !IsTransient(&RemoteError{Service: "payment", StatusCode: http.StatusBadGateway}) {
		t.Error("Expected 502 to be transient")
	}
	if !IsTransient(&RemoteError{Service: "payment", StatusCode: http.StatusRequestTimeout}) {
		t.Error("Expected 408 to be transient")
	}
	if IsTransient(&RemoteError{Service: "payment", StatusCode: http.StatusPaymentRequired}) {
		t.Error("Expected 402 to not be transient")
	}
	if IsTransient(ErrSeatUnavailable) {
		t.Error("Expected conflict to not be transient")
	}
	if IsTransient(nil) {
		t.Error("Expected nil to not be transient")
	}
}
