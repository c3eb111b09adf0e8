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
	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/service"
)

func setupSeatLockRouter(t *testing.T, seatIDs ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	seatRepo := repository.NewMemorySeatRepository()
	now := time.Now()
	for _, id := range seatIDs {
		if err := seatRepo.Create(context.Background(), &domain.Seat{
			ID:        id,
			EventID:   "event-1",
			RowLabel:  "A",
			Status:    domain.SeatStatusAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			t.Fatalf("Failed to create seat: %v", err)
		}
	}

	seatLocks := service.NewSeatLockService(
		lockstore.NewMemoryLockStore(), seatRepo,
		&service.SeatLockServiceConfig{LockTTL: time.Minute})

	h := NewSeatLockHandler(seatLocks)
	r := gin.New()
	r.POST("/seats/acquire", h.AcquireSeats)
	r.POST("/seats/release", h.ReleaseSeats)
	r.POST("/seats/extend", h.ExtendSeats)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSeatLockHandler_AcquireReturnsExpiry(t *testing.T) {
	r := setupSeatLockRouter(t, "seat-1", "seat-2")

	w := postJSON(t, r, "/seats/acquire", gin.H{
		"owner_id": "owner-a",
		"seat_ids": []string{"seat-1", "seat-2"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			OwnerID   string    `json:"owner_id"`
			SeatIDs   []string  `json:"seat_ids"`
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !envelope.Success {
		t.Error("Expected success envelope")
	}
	if envelope.Data.ExpiresAt.IsZero() {
		t.Error("Expected expires_at in acquire response")
	}
	if !envelope.Data.ExpiresAt.After(time.Now()) {
		t.Errorf("Expected a future expiry, got %s", envelope.Data.ExpiresAt)
	}
}

func TestSeatLockHandler_AcquireConflictIs409(t *testing.T) {
	r := setupSeatLockRouter(t, "seat-1")

	first := postJSON(t, r, "/seats/acquire", gin.H{
		"owner_id": "owner-a",
		"seat_ids": []string{"seat-1"},
	})
	if first.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", first.Code)
	}

	second := postJSON(t, r, "/seats/acquire", gin.H{
		"owner_id": "owner-b",
		"seat_ids": []string{"seat-1"},
	})
	if second.Code != http.StatusConflict {
		t.Errorf("Expected 409 for contested seat, got %d", second.Code)
	}
}

func TestSeatLockHandler_ExtendReturnsExpiry(t *testing.T) {
	r := setupSeatLockRouter(t, "seat-1")

	acquire := postJSON(t, r, "/seats/acquire", gin.H{
		"owner_id": "owner-a",
		"seat_ids": []string{"seat-1"},
	})
	if acquire.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", acquire.Code)
	}

	extend := postJSON(t, r, "/seats/extend", gin.H{
		"owner_id": "owner-a",
		"seat_ids": []string{"seat-1"},
	})
	if extend.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", extend.Code, extend.Body.String())
	}

	var envelope struct {
		Data struct {
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(extend.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if envelope.Data.ExpiresAt.IsZero() {
		t.Error("Expected expires_at in extend response")
	}
}
