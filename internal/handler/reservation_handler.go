package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/response"
	"github.com/ticketrush/reservation-core/internal/service"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// ReservationHandler handles reservation HTTP requests
type ReservationHandler struct {
	reservations service.ReservationService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// Create handles POST /reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	// The middleware-level key wins when both are present.
	if key, ok := c.Get("idempotency_key"); ok {
		if s, ok := key.(string); ok && s != "" {
			req.IdempotencyKey = s
		}
	}

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("event_id", req.EventID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	reservation, err := h.reservations.Create(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	span.SetAttributes(attribute.String("reservation_id", reservation.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.ToReservationResponse(reservation))
}

// Get handles GET /reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id := c.Param("id")
	if id == "" {
		span.SetStatus(codes.Error, "reservation id required")
		response.BadRequest(c, "reservation id required")
		return
	}
	span.SetAttributes(attribute.String("reservation_id", id))

	reservation, err := h.reservations.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.ToReservationResponse(reservation))
}

// Cancel handles POST /reservations/:id/cancel
func (h *ReservationHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id := c.Param("id")
	if id == "" {
		span.SetStatus(codes.Error, "reservation id required")
		response.BadRequest(c, "reservation id required")
		return
	}

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("reservation_id", id),
		attribute.String("user_id", req.UserID),
	)

	if err := h.reservations.Cancel(ctx, id, req.UserID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"reservation_id": id, "status": "CANCELLED"})
}
