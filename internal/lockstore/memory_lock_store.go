package lockstore

import (
	"context"
	"sync"
	"time"
)

type memoryLock struct {
	owner     string
	expiresAt time.Time
}

// MemoryLockStore is an in-memory SeatLockStore for testing.
// Expired entries are treated as absent and lazily removed.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

// NewMemoryLockStore creates an in-memory seat lock store
func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{
		locks: make(map[string]memoryLock),
		now:   time.Now,
	}
}

// SetClock overrides the time source for tests
func (s *MemoryLockStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the lock entry if present and not expired. Caller holds mu.
func (s *MemoryLockStore) live(seatID string) (memoryLock, bool) {
	lock, ok := s.locks[seatID]
	if !ok {
		return memoryLock{}, false
	}
	if s.now().After(lock.expiresAt) {
		delete(s.locks, seatID)
		return memoryLock{}, false
	}
	return lock, true
}

// Acquire takes the lock if the seat is currently unlocked
func (s *MemoryLockStore) Acquire(ctx context.Context, seatID, ownerID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.live(seatID); held {
		return false, nil
	}
	s.locks[seatID] = memoryLock{owner: ownerID, expiresAt: s.now().Add(ttl)}
	return true, nil
}

// Release deletes the lock only if ownerID holds it
func (s *MemoryLockStore) Release(ctx context.Context, seatID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, held := s.live(seatID)
	if !held || lock.owner != ownerID {
		return false, nil
	}
	delete(s.locks, seatID)
	return true, nil
}

// Extend resets the TTL only if ownerID holds the lock
func (s *MemoryLockStore) Extend(ctx context.Context, seatID, ownerID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, held := s.live(seatID)
	if !held || lock.owner != ownerID {
		return false, nil
	}
	lock.expiresAt = s.now().Add(ttl)
	s.locks[seatID] = lock
	return true, nil
}

// Owner returns the current lock holder, or "" when unlocked
func (s *MemoryLockStore) Owner(ctx context.Context, seatID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, held := s.live(seatID)
	if !held {
		return "", nil
	}
	return lock.owner, nil
}

// TTL returns the remaining lock lifetime
func (s *MemoryLockStore) TTL(ctx context.Context, seatID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, held := s.live(seatID)
	if !held {
		return -2 * time.Millisecond, nil
	}
	return lock.expiresAt.Sub(s.now()), nil
}
