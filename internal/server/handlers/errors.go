package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/pantry/internal/service/ledger"
)

// Error codes returned in API error bodies.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeConflict           = "CONFLICT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Retryable  bool               `json:"retryable,omitempty"`
	Field      string             `json:"field,omitempty"`
	Missing    []string           `json:"missing,omitempty"`
	Shortfalls []ledger.Shortfall `json:"shortfalls,omitempty"`
	RequestID  string             `json:"requestId,omitempty"`
}

// mapLedgerError picks the status and body for a ledger error.
func mapLedgerError(err error) (int, ErrorResponse) {
	var (
		validation   *ledger.ValidationError
		notFound     *ledger.NotFoundError
		insufficient *ledger.InsufficientStockError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorResponse{Code: CodeValidationError, Message: validation.Error(), Field: validation.Field}
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Message: notFound.Error(), Missing: notFound.IDs}
	case errors.As(err, &insufficient):
		return http.StatusConflict, ErrorResponse{Code: CodeInsufficientStock, Message: "insufficient stock", Shortfalls: insufficient.Shortfalls}
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, ErrorResponse{Code: CodeConflict, Message: "stock changed concurrently, retry the request", Retryable: true}
	default:
		return http.StatusServiceUnavailable, ErrorResponse{Code: CodeServiceUnavailable, Message: "stock store is temporarily unavailable", Retryable: true}
	}
}

func abortWithError(c *gin.Context, status int, body ErrorResponse) {
	body.RequestID = c.GetString(RequestIDKey)
	c.AbortWithStatusJSON(status, body)
}
