package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/response"
	"github.com/ticketrush/reservation-core/internal/saga"
	"github.com/ticketrush/reservation-core/internal/service"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// BookingHandler runs the payment booking saga for a reservation
type BookingHandler struct {
	reservations service.ReservationService
	orchestrator *saga.Orchestrator
	steps        []saga.Step
	currency     string
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(reservations service.ReservationService, orchestrator *saga.Orchestrator, steps []saga.Step, currency string) *BookingHandler {
	if currency == "" {
		currency = "USD"
	}
	return &BookingHandler{
		reservations: reservations,
		orchestrator: orchestrator,
		steps:        steps,
		currency:     currency,
	}
}

// Confirm handles POST /bookings/confirm. It charges the payment,
// confirms the reservation and its seats, and issues a ticket, with
// automatic compensation when any step fails.
func (h *BookingHandler) Confirm(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ConfirmBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}
	span.SetAttributes(attribute.String("reservation_id", req.ReservationID))

	reservation, err := h.reservations.GetByID(ctx, req.ReservationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		response.FromError(c, err)
		return
	}

	payload, err := json.Marshal(saga.PaymentBookingPayload{
		ReservationID: reservation.ID,
		UserID:        reservation.UserID,
		EventID:       reservation.EventID,
		SeatIDs:       reservation.SeatIDs,
		Amount:        reservation.TotalAmount,
		Currency:      h.currency,
	})
	if err != nil {
		span.RecordError(err)
		response.InternalError(c, err)
		return
	}

	execution, sagaErr := h.orchestrator.Execute(ctx, saga.PaymentBookingSagaName, h.steps, payload)
	if execution == nil {
		span.RecordError(sagaErr)
		span.SetStatus(codes.Error, sagaErr.Error())
		response.InternalError(c, sagaErr)
		return
	}

	span.SetAttributes(
		attribute.String("saga_id", execution.ID),
		attribute.String("saga_status", string(execution.Status)),
	)

	result := &dto.ConfirmBookingResponse{
		SagaID:        execution.ID,
		ReservationID: reservation.ID,
		Status:        string(execution.Status),
	}
	var final saga.PaymentBookingPayload
	if err := json.Unmarshal(execution.Payload, &final); err == nil {
		result.PaymentID = final.PaymentID
		result.TicketID = final.TicketID
	}

	if sagaErr != nil {
		span.RecordError(sagaErr)
		span.SetStatus(codes.Error, sagaErr.Error())
		if errors.Is(sagaErr, saga.ErrSagaFailed) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"data":    result,
				"error": gin.H{
					"code":    "BOOKING_FAILED",
					"message": sagaErr.Error(),
				},
			})
			return
		}
		response.InternalError(c, sagaErr)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
