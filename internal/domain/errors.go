package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Domain errors
var (
	// Seat errors
	ErrSeatNotFound      = errors.New("seat not found")
	ErrSeatUnavailable   = errors.New("seat is not available")
	ErrSeatNotLocked     = errors.New("seat is not locked")
	ErrLockNotOwned      = errors.New("seat lock is held by another owner")
	ErrSeatStateConflict = errors.New("seat state changed concurrently")

	// Reservation errors
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationExpired   = errors.New("reservation has expired")
	ErrReservationConflict  = errors.New("reservation is not in the required status")
	ErrDuplicateReservation = errors.New("an active reservation already holds one of these seats")

	// Payment errors
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentDeclined = errors.New("payment was declined")

	// Validation errors
	ErrInvalidUserID  = errors.New("invalid user id")
	ErrInvalidEventID = errors.New("invalid event id")
	ErrInvalidSeatIDs = errors.New("at least one seat id is required")
	ErrInvalidAmount  = errors.New("amount cannot be negative")

	// Saga errors
	ErrSagaNotFound = errors.New("saga execution not found")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSeatNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrSagaNotFound)
}

// IsConflictError checks if the error is a concurrency or state conflict.
// Conflicts are never retried; retrying cannot change the outcome.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSeatUnavailable) ||
		errors.Is(err, ErrLockNotOwned) ||
		errors.Is(err, ErrSeatStateConflict) ||
		errors.Is(err, ErrReservationConflict) ||
		errors.Is(err, ErrDuplicateReservation) ||
		errors.Is(err, ErrReservationExpired)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidSeatIDs) ||
		errors.Is(err, ErrInvalidAmount)
}

// TransientError marks an error as retryable
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// RemoteError carries the HTTP status of a failed downstream call
type RemoteError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
}

// IsTransient reports whether an error is worth retrying. Timeouts,
// connection failures, and 5xx/408 responses are transient; conflicts
// and other 4xx responses are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode >= 500 || re.StatusCode == http.StatusRequestTimeout
	}
	return false
}
