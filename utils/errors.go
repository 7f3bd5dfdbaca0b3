package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-chatbot-platform/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithConflict sends a 409 Conflict error
func RespondWithConflict(c *gin.Context, errorCode, message string) {
	RespondWithError(c, http.StatusConflict, errorCode, message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithDomainError maps the core error taxonomy onto HTTP responses
// so route handlers stay thin. Unrecognized errors become 500s with the
// error text as detail; nothing is swallowed.
func RespondWithDomainError(c *gin.Context, err error) {
	var (
		extractionErr *models.ExtractionError
		rateLimitErr  *models.RateLimitError
		providerErr   *models.ProviderError
	)

	switch {
	case errors.Is(err, models.ErrUnknownKnowledgeBase):
		RespondWithNotFound(c, err.Error())
	case errors.Is(err, models.ErrAlreadyExists):
		RespondWithConflict(c, "already_exists", err.Error())
	case errors.Is(err, models.ErrBuildInProgress):
		RespondWithConflict(c, "build_in_progress", err.Error())
	case errors.Is(err, models.ErrEmptyDocument):
		RespondWithError(c, http.StatusUnprocessableEntity, "empty_document", err.Error(), nil)
	case errors.As(err, &extractionErr):
		RespondWithError(c, http.StatusUnprocessableEntity, "extraction_failed", err.Error(), nil)
	case errors.As(err, &rateLimitErr):
		RespondWithError(c, http.StatusTooManyRequests, "provider_rate_limited", err.Error(), nil)
	case errors.As(err, &providerErr):
		RespondWithError(c, http.StatusBadGateway, "provider_error", err.Error(), nil)
	default:
		RespondWithInternalError(c, "internal error", err.Error())
	}
}
