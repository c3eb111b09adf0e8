package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/service"
)

// ExpiryReconcilerConfig contains configuration for the expiry reconciler
type ExpiryReconcilerConfig struct {
	// Interval is the time between reconciliation passes
	Interval time.Duration
	// BatchSize is the maximum rows handled per pass
	BatchSize int
}

// DefaultExpiryReconcilerConfig returns default configuration
func DefaultExpiryReconcilerConfig() *ExpiryReconcilerConfig {
	return &ExpiryReconcilerConfig{
		Interval:  30 * time.Second,
		BatchSize: 100,
	}
}

// ExpiryReconciler sweeps up state the happy path left behind: seats
// stuck in LOCKED whose lock key is gone, and PENDING reservations
// past their deadline.
type ExpiryReconciler struct {
	seatRepo     repository.SeatRepository
	reservations service.ReservationService
	locks        lockstore.SeatLockStore
	config       *ExpiryReconcilerConfig
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewExpiryReconciler creates a new expiry reconciler
func NewExpiryReconciler(
	seatRepo repository.SeatRepository,
	reservations service.ReservationService,
	locks lockstore.SeatLockStore,
	config *ExpiryReconcilerConfig,
) *ExpiryReconciler {
	if config == nil {
		config = DefaultExpiryReconcilerConfig()
	}
	return &ExpiryReconciler{
		seatRepo:     seatRepo,
		reservations: reservations,
		locks:        locks,
		config:       config,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the reconciler loop
func (w *ExpiryReconciler) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry reconciler already running")
	}
	w.running = true
	w.mu.Unlock()

	logger.Get().Info("starting expiry reconciler",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop stops the reconciler and waits for the in-flight pass
func (w *ExpiryReconciler) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	logger.Get().Info("expiry reconciler stopped")
}

func (w *ExpiryReconciler) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass
func (w *ExpiryReconciler) RunOnce(ctx context.Context) {
	w.reconcileStaleSeats(ctx)
	w.expireReservations(ctx)
}

// reconcileStaleSeats frees seats stuck in LOCKED past their durable
// lock expiry. A live lock key means the owner extended it; those
// seats are left alone.
func (w *ExpiryReconciler) reconcileStaleSeats(ctx context.Context) {
	log := logger.Get()

	seats, err := w.seatRepo.FindStaleLocked(ctx, time.Now(), w.config.BatchSize)
	if err != nil {
		log.Error("failed to scan stale locked seats", zap.Error(err))
		return
	}

	freed := 0
	for _, seat := range seats {
		owner, err := w.locks.Owner(ctx, seat.ID)
		if err != nil {
			log.Warn("failed to read lock owner",
				zap.String("seat_id", seat.ID), zap.Error(err))
			continue
		}
		if owner == seat.LockedBy {
			// The lock key is still live; the owner extended it.
			continue
		}

		ok, err := w.seatRepo.ForceAvailable(ctx, seat.ID, seat.LockedBy)
		if err != nil {
			log.Error("failed to free stale seat",
				zap.String("seat_id", seat.ID), zap.Error(err))
			continue
		}
		if ok {
			freed++
			log.Info("freed stale locked seat",
				zap.String("seat_id", seat.ID),
				zap.String("previous_owner", seat.LockedBy))
		}
	}

	if freed > 0 {
		log.Info("stale seat pass complete",
			zap.Int("scanned", len(seats)), zap.Int("freed", freed))
	}
}

// expireReservations moves overdue PENDING reservations to EXPIRED
func (w *ExpiryReconciler) expireReservations(ctx context.Context) {
	log := logger.Get()

	reservations, err := w.reservations.FindExpired(ctx, w.config.BatchSize)
	if err != nil {
		log.Error("failed to scan expired reservations", zap.Error(err))
		return
	}

	expired := 0
	for _, reservation := range reservations {
		if err := w.reservations.Expire(ctx, reservation.ID); err != nil {
			log.Error("failed to expire reservation",
				zap.String("reservation_id", reservation.ID), zap.Error(err))
			continue
		}
		expired++
	}

	if expired > 0 {
		log.Info("reservation expiry pass complete",
			zap.Int("scanned", len(reservations)), zap.Int("expired", expired))
	}
}
