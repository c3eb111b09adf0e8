package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ticketrush/reservation-core/internal/redis"
)

const lockKeyPrefix = "lock:"

// releaseScript deletes the lock only when the stored owner matches.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

// extendScript resets the TTL only when the stored owner matches.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`

// RedisLockStore implements SeatLockStore on top of Redis.
// Acquisition uses SET NX with a TTL; release and extend use Lua so
// the owner check and the mutation are a single atomic step.
type RedisLockStore struct {
	client *redis.Client
}

// NewRedisLockStore creates a Redis-backed seat lock store
func NewRedisLockStore(client *redis.Client) *RedisLockStore {
	return &RedisLockStore{client: client}
}

func lockKey(seatID string) string {
	return lockKeyPrefix + seatID
}

// Acquire takes the lock via SET NX with TTL
func (s *RedisLockStore) Acquire(ctx context.Context, seatID, ownerID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(seatID), ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for seat %s: %w", seatID, err)
	}
	return ok, nil
}

// Release deletes the lock only if ownerID holds it
func (s *RedisLockStore) Release(ctx context.Context, seatID, ownerID string) (bool, error) {
	result, err := s.client.EvalWithFallback(ctx, "lock_release", releaseScript,
		[]string{lockKey(seatID)}, ownerID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to release lock for seat %s: %w", seatID, err)
	}
	deleted, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected release script result for seat %s: %v", seatID, result)
	}
	return deleted == 1, nil
}

// Extend resets the TTL only if ownerID holds the lock
func (s *RedisLockStore) Extend(ctx context.Context, seatID, ownerID string, ttl time.Duration) (bool, error) {
	result, err := s.client.EvalWithFallback(ctx, "lock_extend", extendScript,
		[]string{lockKey(seatID)}, ownerID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to extend lock for seat %s: %w", seatID, err)
	}
	extended, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected extend script result for seat %s: %v", seatID, result)
	}
	return extended == 1, nil
}

// Owner returns the current lock holder, or "" when unlocked
func (s *RedisLockStore) Owner(ctx context.Context, seatID string) (string, error) {
	owner, err := s.client.Get(ctx, lockKey(seatID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lock owner for seat %s: %w", seatID, err)
	}
	return owner, nil
}

// TTL returns the remaining lock lifetime
func (s *RedisLockStore) TTL(ctx context.Context, seatID string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, lockKey(seatID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read lock TTL for seat %s: %w", seatID, err)
	}
	return ttl, nil
}
