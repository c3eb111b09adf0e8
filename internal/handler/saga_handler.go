package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ticketrush/reservation-core/internal/dto"
	"github.com/ticketrush/reservation-core/internal/response"
	"github.com/ticketrush/reservation-core/internal/saga"
	"github.com/ticketrush/reservation-core/internal/telemetry"
)

// SagaHandler exposes saga execution state for operators
type SagaHandler struct {
	orchestrator *saga.Orchestrator
}

// NewSagaHandler creates a new saga handler
func NewSagaHandler(orchestrator *saga.Orchestrator) *SagaHandler {
	return &SagaHandler{orchestrator: orchestrator}
}

// Get handles GET /sagas/:id
func (h *SagaHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.saga.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id := c.Param("id")
	if id == "" {
		span.SetStatus(codes.Error, "saga id required")
		response.BadRequest(c, "saga id required")
		return
	}
	span.SetAttributes(attribute.String("saga_id", id))

	execution, err := h.orchestrator.GetExecution(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, saga.ErrExecutionNotFound) {
			response.NotFound(c, "saga execution not found")
			return
		}
		response.InternalError(c, err)
		return
	}

	result := &dto.SagaStatusResponse{
		ID:        execution.ID,
		Name:      execution.Name,
		Status:    string(execution.Status),
		Steps:     make([]dto.SagaStepResponse, 0, len(execution.Steps)),
		CreatedAt: execution.CreatedAt,
		UpdatedAt: execution.UpdatedAt,
	}
	for _, step := range execution.Steps {
		result.Steps = append(result.Steps, dto.SagaStepResponse{
			Name:      step.Name,
			StepOrder: step.StepOrder,
			Status:    string(step.Status),
			Attempts:  step.Attempts,
			Error:     step.Error,
		})
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}
