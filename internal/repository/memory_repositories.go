package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ticketrush/reservation-core/internal/domain"
)

// MemorySeatRepository is an in-memory SeatRepository for testing
type MemorySeatRepository struct {
	mu    sync.RWMutex
	seats map[string]*domain.Seat
}

// NewMemorySeatRepository creates an in-memory seat repository
func NewMemorySeatRepository() *MemorySeatRepository {
	return &MemorySeatRepository{seats: make(map[string]*domain.Seat)}
}

func copySeat(s *domain.Seat) *domain.Seat {
	c := *s
	if s.LockedAt != nil {
		t := *s.LockedAt
		c.LockedAt = &t
	}
	if s.LockExpiresAt != nil {
		t := *s.LockExpiresAt
		c.LockExpiresAt = &t
	}
	return &c
}

func (r *MemorySeatRepository) Create(ctx context.Context, seat *domain.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats[seat.ID] = copySeat(seat)
	return nil
}

func (r *MemorySeatRepository) GetByID(ctx context.Context, id string) (*domain.Seat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seat, ok := r.seats[id]
	if !ok {
		return nil, domain.ErrSeatNotFound
	}
	return copySeat(seat), nil
}

func (r *MemorySeatRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Seat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seats := make([]*domain.Seat, 0, len(ids))
	for _, id := range ids {
		if seat, ok := r.seats[id]; ok {
			seats = append(seats, copySeat(seat))
		}
	}
	return seats, nil
}

func (r *MemorySeatRepository) MarkLocked(ctx context.Context, seatID, ownerID string, lockedAt, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seats[seatID]
	if !ok || seat.Status != domain.SeatStatusAvailable {
		return false, nil
	}
	seat.Status = domain.SeatStatusLocked
	seat.LockedBy = ownerID
	t := lockedAt
	seat.LockedAt = &t
	exp := expiresAt
	seat.LockExpiresAt = &exp
	seat.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemorySeatRepository) ExtendLocked(ctx context.Context, seatID, ownerID string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seats[seatID]
	if !ok || seat.Status != domain.SeatStatusLocked || seat.LockedBy != ownerID {
		return false, nil
	}
	exp := expiresAt
	seat.LockExpiresAt = &exp
	seat.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemorySeatRepository) MarkAvailable(ctx context.Context, seatID, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seats[seatID]
	if !ok || seat.Status != domain.SeatStatusLocked || seat.LockedBy != ownerID {
		return false, nil
	}
	seat.Status = domain.SeatStatusAvailable
	seat.LockedBy = ""
	seat.LockedAt = nil
	seat.LockExpiresAt = nil
	seat.ReservationID = ""
	seat.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemorySeatRepository) MarkReserved(ctx context.Context, seatID, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seats[seatID]
	if !ok || seat.Status != domain.SeatStatusLocked || seat.LockedBy != ownerID {
		return false, nil
	}
	seat.Status = domain.SeatStatusReserved
	seat.LockedBy = ""
	seat.LockedAt = nil
	seat.LockExpiresAt = nil
	seat.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemorySeatRepository) AssociateReservation(ctx context.Context, seatIDs []string, ownerID, reservationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, id := range seatIDs {
		seat, ok := r.seats[id]
		if !ok || seat.Status != domain.SeatStatusLocked || seat.LockedBy != ownerID {
			continue
		}
		seat.ReservationID = reservationID
		seat.UpdatedAt = time.Now()
		updated++
	}
	return updated, nil
}

func (r *MemorySeatRepository) ReleaseForCompensation(ctx context.Context, reservationID string, seatIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, id := range seatIDs {
		seat, ok := r.seats[id]
		if !ok {
			continue
		}
		if seat.ReservationID != reservationID && seat.Status != domain.SeatStatusReserved {
			continue
		}
		seat.Status = domain.SeatStatusAvailable
		seat.LockedBy = ""
		seat.LockedAt = nil
		seat.LockExpiresAt = nil
		seat.ReservationID = ""
		seat.UpdatedAt = time.Now()
		updated++
	}
	return updated, nil
}

func (r *MemorySeatRepository) FindStaleLocked(ctx context.Context, now time.Time, limit int) ([]*domain.Seat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var seats []*domain.Seat
	for _, seat := range r.seats {
		if seat.Status == domain.SeatStatusLocked && seat.LockExpiresAt != nil && seat.LockExpiresAt.Before(now) {
			seats = append(seats, copySeat(seat))
		}
	}
	sort.Slice(seats, func(i, j int) bool {
		return seats[i].LockExpiresAt.Before(*seats[j].LockExpiresAt)
	})
	if len(seats) > limit {
		seats = seats[:limit]
	}
	return seats, nil
}

func (r *MemorySeatRepository) ForceAvailable(ctx context.Context, seatID, prevOwner string) (bool, error) {
	return r.MarkAvailable(ctx, seatID, prevOwner)
}

// MemoryReservationRepository is an in-memory ReservationRepository for testing
type MemoryReservationRepository struct {
	mu           sync.RWMutex
	reservations map[string]*domain.Reservation
	byKey        map[string]string
}

// NewMemoryReservationRepository creates an in-memory reservation repository
func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{
		reservations: make(map[string]*domain.Reservation),
		byKey:        make(map[string]string),
	}
}

func copyReservation(res *domain.Reservation) *domain.Reservation {
	c := *res
	c.SeatIDs = append([]string(nil), res.SeatIDs...)
	if res.ConfirmedAt != nil {
		t := *res.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if res.CancelledAt != nil {
		t := *res.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func (r *MemoryReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reservation.IdempotencyKey != "" {
		if _, exists := r.byKey[reservation.IdempotencyKey]; exists {
			return domain.ErrDuplicateReservation
		}
		r.byKey[reservation.IdempotencyKey] = reservation.ID
	}
	r.reservations[reservation.ID] = copyReservation(reservation)
	return nil
}

func (r *MemoryReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(res), nil
}

func (r *MemoryReservationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(r.reservations[id]), nil
}

func (r *MemoryReservationRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok || res.Status != fromStatus {
		return false, nil
	}
	res.Status = toStatus
	switch toStatus {
	case domain.ReservationStatusConfirmed:
		t := at
		res.ConfirmedAt = &t
	case domain.ReservationStatusCancelled, domain.ReservationStatusExpired:
		t := at
		res.CancelledAt = &t
	}
	res.UpdatedAt = at
	return true, nil
}

func (r *MemoryReservationRepository) FindActiveForSeats(ctx context.Context, eventID string, seatIDs []string) ([]*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[string]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	var out []*domain.Reservation
	for _, res := range r.reservations {
		if res.EventID != eventID {
			continue
		}
		if res.Status != domain.ReservationStatusPending && res.Status != domain.ReservationStatusConfirmed {
			continue
		}
		for _, id := range res.SeatIDs {
			if want[id] {
				out = append(out, copyReservation(res))
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var expired []*domain.Reservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationStatusPending && res.ExpiresAt.Before(now) {
			expired = append(expired, copyReservation(res))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// MemoryPaymentRepository is an in-memory PaymentRepository for testing
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

// NewMemoryPaymentRepository creates an in-memory payment repository
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]*domain.Payment)}
}

func copyPayment(p *domain.Payment) *domain.Payment {
	c := *p
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		c.RefundedAt = &t
	}
	return &c
}

func (r *MemoryPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[payment.ID] = copyPayment(payment)
	return nil
}

func (r *MemoryPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return copyPayment(p), nil
}

func (r *MemoryPaymentRepository) GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Payment
	for _, p := range r.payments {
		if p.ReservationID != reservationID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return copyPayment(latest), nil
}

func (r *MemoryPaymentRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != fromStatus {
		return false, nil
	}
	p.Status = toStatus
	if toStatus == domain.PaymentStatusRefunded {
		t := at
		p.RefundedAt = &t
	}
	p.UpdatedAt = at
	return true, nil
}
