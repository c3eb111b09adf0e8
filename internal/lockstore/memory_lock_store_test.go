package lockstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLockStore_AcquireRelease(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "seat-1", "owner-a", time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected first acquire to succeed")
	}

	// Second owner cannot take a held lock
	ok, err = store.Acquire(ctx, "seat-1", "owner-b", time.Minute)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if ok {
		t.Fatal("Expected acquire by second owner to fail")
	}

	// Wrong owner cannot release
	ok, err = store.Release(ctx, "seat-1", "owner-b")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok {
		t.Fatal("Expected release by non-owner to fail")
	}

	ok, err = store.Release(ctx, "seat-1", "owner-a")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected release by owner to succeed")
	}

	// Released seat is free again
	ok, _ = store.Acquire(ctx, "seat-1", "owner-b", time.Minute)
	if !ok {
		t.Fatal("Expected acquire after release to succeed")
	}
}

func TestMemoryLockStore_Expiry(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	ok, _ := store.Acquire(ctx, "seat-1", "owner-a", time.Minute)
	if !ok {
		t.Fatal("Expected acquire to succeed")
	}

	// Advance past the TTL
	now = now.Add(2 * time.Minute)

	owner, err := store.Owner(ctx, "seat-1")
	if err != nil {
		t.Fatalf("Owner failed: %v", err)
	}
	if owner != "" {
		t.Fatalf("Expected expired lock to have no owner, got %q", owner)
	}

	ok, _ = store.Acquire(ctx, "seat-1", "owner-b", time.Minute)
	if !ok {
		t.Fatal("Expected acquire of expired lock to succeed")
	}
}

func TestMemoryLockStore_Extend(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	store.Acquire(ctx, "seat-1", "owner-a", time.Minute)

	ok, err := store.Extend(ctx, "seat-1", "owner-a", 5*time.Minute)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected extend by owner to succeed")
	}

	ttl, _ := store.TTL(ctx, "seat-1")
	if ttl != 5*time.Minute {
		t.Fatalf("Expected TTL of 5m after extend, got %v", ttl)
	}

	ok, _ = store.Extend(ctx, "seat-1", "owner-b", 5*time.Minute)
	if ok {
		t.Fatal("Expected extend by non-owner to fail")
	}
}

func TestMemoryLockStore_MutualExclusion(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := store.Acquire(ctx, "seat-1", string(rune('a'+n%26))+"-owner", time.Minute)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("Expected exactly one winner, got %d", winners)
	}
}
