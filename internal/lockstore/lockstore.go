package lockstore

import (
	"context"
	"time"
)

// SeatLockStore arbitrates short-lived seat ownership. A lock is a
// key/value pair (seat id -> owner id) with a TTL; whoever holds the
// live key is the current owner of the seat.
type SeatLockStore interface {
	// Acquire takes the lock for ownerID if the seat is currently
	// unlocked. Returns false when another owner holds the lock.
	Acquire(ctx context.Context, seatID, ownerID string, ttl time.Duration) (bool, error)

	// Release deletes the lock only if ownerID still holds it.
	// Returns false when the lock is absent or held by someone else.
	Release(ctx context.Context, seatID, ownerID string) (bool, error)

	// Extend resets the TTL only if ownerID still holds the lock.
	// Returns false when the lock is absent or held by someone else.
	Extend(ctx context.Context, seatID, ownerID string, ttl time.Duration) (bool, error)

	// Owner returns the current lock holder, or "" when unlocked.
	Owner(ctx context.Context, seatID string) (string, error)

	// TTL returns the remaining lifetime of the lock. Returns a
	// negative duration when the seat is not locked.
	TTL(ctx context.Context, seatID string) (time.Duration, error)
}
