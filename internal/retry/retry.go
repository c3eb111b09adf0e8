package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Common errors
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains backoff configuration
type Config struct {
	// InitialInterval is the initial backoff interval (default: 1s)
	InitialInterval time.Duration
	// MaxInterval is the maximum backoff interval (default: 30s)
	MaxInterval time.Duration
	// Multiplier is the factor applied after each attempt (default: 2.0)
	Multiplier float64
	// JitterFactor is the random jitter factor in [0,1] (default: 0.1, i.e. ±10%)
	JitterFactor float64
}

// DefaultConfig returns the default backoff configuration.
// Exponential backoff: 1s, 2s, 4s, 8s, 16s, 30s (capped).
func DefaultConfig() *Config {
	return &Config{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

func (c *Config) normalized() *Config {
	cfg := *c
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 1 * time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}
	return &cfg
}

// Backoff returns the backoff interval for the given zero-based attempt.
func Backoff(cfg *Config, attempt int) time.Duration {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := cfg.normalized()

	interval := float64(c.InitialInterval) * math.Pow(c.Multiplier, float64(attempt))

	// Jitter prevents thundering herds of retriers
	if c.JitterFactor > 0 {
		jitter := interval * c.JitterFactor
		interval = interval + (rand.Float64()*2-1)*jitter
	}

	if interval > float64(c.MaxInterval) {
		interval = float64(c.MaxInterval)
	}
	if interval < 0 {
		interval = float64(c.InitialInterval)
	}

	return time.Duration(interval)
}

// Wait sleeps for the attempt's backoff interval or until the context is done.
func Wait(ctx context.Context, cfg *Config, attempt int) error {
	select {
	case <-ctx.Done():
		return ErrContextCanceled
	case <-time.After(Backoff(cfg, attempt)):
		return nil
	}
}

// PermanentError wraps an error indicating it should NOT be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as permanent (not retryable)
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// Do executes op with exponential backoff until it succeeds, returns a
// permanent error, the context is canceled, or maxRetries is exhausted.
func Do(ctx context.Context, cfg *Config, maxRetries int, op Operation) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ErrContextCanceled
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}

		if attempt == maxRetries {
			break
		}

		if werr := Wait(ctx, cfg, attempt); werr != nil {
			return werr
		}
	}

	if lastErr != nil {
		return errors.Join(ErrMaxRetriesExceeded, lastErr)
	}
	return ErrMaxRetriesExceeded
}
