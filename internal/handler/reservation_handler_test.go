package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/dto"
)

// MockReservationService is a func-field mock of ReservationService
type MockReservationService struct {
	CreateFunc                func(ctx context.Context, req *dto.CreateReservationRequest) (*domain.Reservation, error)
	GetByIDFunc               func(ctx context.Context, id string) (*domain.Reservation, error)
	ConfirmFunc               func(ctx context.Context, id string) (*domain.Reservation, error)
	CancelFunc                func(ctx context.Context, id, userID string) error
	CancelForCompensationFunc func(ctx context.Context, id string) error
	ExpireFunc                func(ctx context.Context, id string) error
	FindExpiredFunc           func(ctx context.Context, limit int) ([]*domain.Reservation, error)
}

func (m *MockReservationService) Create(ctx context.Context, req *dto.CreateReservationRequest) (*domain.Reservation, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockReservationService) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockReservationService) Confirm(ctx context.Context, id string) (*domain.Reservation, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockReservationService) Cancel(ctx context.Context, id, userID string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, userID)
	}
	return nil
}

func (m *MockReservationService) CancelForCompensation(ctx context.Context, id string) error {
	if m.CancelForCompensationFunc != nil {
		return m.CancelForCompensationFunc(ctx, id)
	}
	return nil
}

func (m *MockReservationService) Expire(ctx context.Context, id string) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, id)
	}
	return nil
}

func (m *MockReservationService) FindExpired(ctx context.Context, limit int) ([]*domain.Reservation, error) {
	if m.FindExpiredFunc != nil {
		return m.FindExpiredFunc(ctx, limit)
	}
	return nil, nil
}

func setupReservationRouter(svc *MockReservationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewReservationHandler(svc)
	r.POST("/reservations", h.Create)
	r.GET("/reservations/:id", h.Get)
	r.POST("/reservations/:id/cancel", h.Cancel)
	return r
}

func sampleReservation() *domain.Reservation {
	now := time.Now()
	return &domain.Reservation{
		ID:          "res-1",
		UserID:      "user-1",
		EventID:     "event-1",
		SeatIDs:     []string{"seat-1", "seat-2"},
		Status:      domain.ReservationStatusPending,
		TotalAmount: 120,
		ExpiresAt:   now.Add(15 * time.Minute),
		CreatedAt:   now,
	}
}

func TestReservationHandler_Create(t *testing.T) {
	svc := &MockReservationService{
		CreateFunc: func(ctx context.Context, req *dto.CreateReservationRequest) (*domain.Reservation, error) {
			if req.UserID != "user-1" || len(req.SeatIDs) != 2 {
				t.Errorf("unexpected request: %+v", req)
			}
			return sampleReservation(), nil
		},
	}
	router := setupReservationRouter(svc)

	body, _ := json.Marshal(dto.CreateReservationRequest{
		UserID:      "user-1",
		EventID:     "event-1",
		SeatIDs:     []string{"seat-1", "seat-2"},
		TotalAmount: 120,
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var envelope struct {
		Success bool                     `json:"success"`
		Data    *dto.ReservationResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Success || envelope.Data == nil || envelope.Data.ID != "res-1" {
		t.Errorf("unexpected envelope: %s", w.Body.String())
	}
}

func TestReservationHandler_CreateValidation(t *testing.T) {
	router := setupReservationRouter(&MockReservationService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewReader([]byte(`{"user_id":"u"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestReservationHandler_CreateSeatConflict(t *testing.T) {
	svc := &MockReservationService{
		CreateFunc: func(ctx context.Context, req *dto.CreateReservationRequest) (*domain.Reservation, error) {
			return nil, domain.ErrSeatUnavailable
		},
	}
	router := setupReservationRouter(svc)

	body, _ := json.Marshal(dto.CreateReservationRequest{
		UserID:  "user-1",
		EventID: "event-1",
		SeatIDs: []string{"seat-1"},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d, body %s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestReservationHandler_GetNotFound(t *testing.T) {
	svc := &MockReservationService{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Reservation, error) {
			return nil, domain.ErrReservationNotFound
		},
	}
	router := setupReservationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/reservations/missing", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestReservationHandler_Cancel(t *testing.T) {
	cancelled := false
	svc := &MockReservationService{
		CancelFunc: func(ctx context.Context, id, userID string) error {
			cancelled = true
			if id != "res-1" || userID != "user-1" {
				t.Errorf("unexpected cancel args: %s %s", id, userID)
			}
			return nil
		},
	}
	router := setupReservationRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reservations/res-1/cancel",
		bytes.NewReader([]byte(`{"user_id":"user-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	if !cancelled {
		t.Error("expected Cancel to be called")
	}
}
