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

// SeatLockHandler handles seat lock HTTP requests
type SeatLockHandler struct {
	seatLocks service.SeatLockService
}

// NewSeatLockHandler creates a new seat lock handler
func NewSeatLockHandler(seatLocks service.SeatLockService) *SeatLockHandler {
	return &SeatLockHandler{seatLocks: seatLocks}
}

// AcquireSeats handles POST /seats/acquire
func (h *SeatLockHandler) AcquireSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.seats.acquire")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.AcquireSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("owner_id", req.OwnerID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	expiresAt, err := h.seatLocks.AcquireSeats(ctx, req.OwnerID, req.SeatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{
		"owner_id":   req.OwnerID,
		"seat_ids":   req.SeatIDs,
		"expires_at": expiresAt,
	})
}

// ReleaseSeats handles POST /seats/release
func (h *SeatLockHandler) ReleaseSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.seats.release")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ReleaseSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("owner_id", req.OwnerID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	if err := h.seatLocks.ReleaseSeats(ctx, req.OwnerID, req.SeatIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"owner_id": req.OwnerID, "seat_ids": req.SeatIDs})
}

// ExtendSeats handles POST /seats/extend
func (h *SeatLockHandler) ExtendSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.seats.extend")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ExtendSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("owner_id", req.OwnerID),
		attribute.Int("seat_count", len(req.SeatIDs)),
	)

	expiresAt, err := h.seatLocks.ExtendSeats(ctx, req.OwnerID, req.SeatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{
		"owner_id":   req.OwnerID,
		"seat_ids":   req.SeatIDs,
		"expires_at": expiresAt,
	})
}
