package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ticketrush/reservation-core/internal/domain"
	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/saga"
)

type stubStep struct {
	name    string
	execute func(ctx context.Context, payload []byte) ([]byte, error)
}

func (s *stubStep) Name() string { return s.name }
func (s *stubStep) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	return s.execute(ctx, payload)
}
func (s *stubStep) CanRetry(err error) bool { return false }
func (s *stubStep) MaxRetries() int         { return 0 }

func setupBookingRouter(svc *MockReservationService, steps []saga.Step) *gin.Engine {
	gin.SetMode(gin.TestMode)
	orchestrator := saga.NewOrchestrator(&saga.OrchestratorConfig{Store: saga.NewMemoryStore()})
	r := gin.New()
	h := NewBookingHandler(svc, orchestrator, steps, "USD")
	r.POST("/bookings/confirm", h.Confirm)
	return r
}

func confirmBookingRequest(t *testing.T, router *gin.Engine) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(dto.ConfirmBookingRequest{ReservationID: "res-1"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/confirm", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestBookingHandler_ConfirmSuccess(t *testing.T) {
	svc := &MockReservationService{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Reservation, error) {
			return sampleReservation(), nil
		},
	}
	steps := []saga.Step{
		&stubStep{name: "charge_payment", execute: func(ctx context.Context, payload []byte) ([]byte, error) {
			var p saga.PaymentBookingPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, err
			}
			if p.ReservationID != "res-1" || p.Amount != 120 {
				t.Errorf("unexpected payload: %+v", p)
			}
			p.PaymentID = "pay-1"
			p.TicketID = "ticket-1"
			return json.Marshal(p)
		}},
	}
	router := setupBookingRouter(svc, steps)

	w := confirmBookingRequest(t, router)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	var envelope struct {
		Data *dto.ConfirmBookingResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != string(saga.StatusCompleted) {
		t.Errorf("saga status = %s, want COMPLETED", envelope.Data.Status)
	}
	if envelope.Data.PaymentID != "pay-1" || envelope.Data.TicketID != "ticket-1" {
		t.Errorf("unexpected ids in response: %+v", envelope.Data)
	}
}

func TestBookingHandler_ConfirmSagaFailure(t *testing.T) {
	svc := &MockReservationService{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Reservation, error) {
			return sampleReservation(), nil
		},
	}
	steps := []saga.Step{
		&stubStep{name: "charge_payment", execute: func(ctx context.Context, payload []byte) ([]byte, error) {
			return nil, errors.New("card declined")
		}},
	}
	router := setupBookingRouter(svc, steps)

	w := confirmBookingRequest(t, router)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusConflict, w.Body.String())
	}
	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			SagaID string `json:"saga_id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Success {
		t.Error("expected success=false")
	}
	if envelope.Data.SagaID == "" {
		t.Error("expected saga_id so the failure can be inspected")
	}
	if envelope.Data.Status != string(saga.StatusCompensated) {
		t.Errorf("saga status = %s, want COMPENSATED", envelope.Data.Status)
	}
}

func TestBookingHandler_ConfirmUnknownReservation(t *testing.T) {
	svc := &MockReservationService{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Reservation, error) {
			return nil, domain.ErrReservationNotFound
		},
	}
	router := setupBookingRouter(svc, nil)

	w := confirmBookingRequest(t, router)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
