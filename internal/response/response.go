package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ticketrush/reservation-core/internal/domain"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

func Error(c *gin.Context, status int, code, message string, details string) {
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorData{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func InternalError(c *gin.Context, err error) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", err.Error())
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message, "")
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message, "")
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, "CONFLICT", message, "")
}

// FromError maps a domain error onto the response envelope: conflicts
// to 409, not-found to 404, validation to 400, everything else to 500.
func FromError(c *gin.Context, err error) {
	switch {
	case domain.IsConflictError(err):
		Conflict(c, err.Error())
	case domain.IsNotFoundError(err) || errors.Is(err, domain.ErrSagaNotFound):
		NotFound(c, err.Error())
	case domain.IsValidationError(err):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err)
	}
}
