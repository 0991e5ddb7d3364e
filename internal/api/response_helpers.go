// internal/api/response_helpers.go
package api

import (
	"net/http"
	"regexp"
	"time"

	apperrors "github.com/Corphon/LectureCompanion/internal/errors"
	"github.com/Corphon/LectureCompanion/internal/utils"
	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is reported when the caller went away mid-request.
const StatusClientClosedRequest = 499

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError is the error part of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper writes envelopes.
type ResponseHelper struct {
	metrics *utils.MetricsCollector
}

// NewResponseHelper creates a response helper.
func NewResponseHelper(metrics *utils.MetricsCollector) *ResponseHelper {
	return &ResponseHelper{metrics: metrics}
}

// Success writes a 200 envelope.
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message)
}

// Created writes a 201 envelope.
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusCreated, data, message)
}

// Accepted writes a 202 envelope for queued work.
func (rh *ResponseHelper) Accepted(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusAccepted, data, message)
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message []string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

var (
	secretAssignment = regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password|authorization)(["']?\s*[:=]\s*["']?)[^\s"',}]+`)
	bearerToken      = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)
	vendorKey        = regexp.MustCompile(`\b(sk|pk|xai|ghp)[-_][A-Za-z0-9_\-]{8,}`)
)

// sanitizeErrorMessage strips credentials that upstream errors sometimes echo.
func sanitizeErrorMessage(message string) string {
	message = bearerToken.ReplaceAllString(message, "Bearer [REDACTED]")
	message = secretAssignment.ReplaceAllString(message, "$1$2[REDACTED]")
	return vendorKey.ReplaceAllString(message, "[REDACTED]")
}

// Error writes an error envelope.
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.AbortWithStatusJSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// BadRequest writes a 400 envelope.
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound writes a 404 envelope.
func (rh *ResponseHelper) NotFound(c *gin.Context, message string) {
	rh.Error(c, http.StatusNotFound, ErrorNotFound, message)
}

// Fail maps err onto a status and code. AppErrors keep their own code;
// anything else is reported as an internal error without details.
func (rh *ResponseHelper) Fail(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !apperrors.As(err, &appErr) {
		utils.GetLogger().Error("unhandled error", map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": getRequestID(c),
			"error":      err.Error(),
		})
		rh.recordError("internal")
		rh.Error(c, http.StatusInternalServerError, ErrorInternalError, "internal server error")
		return
	}

	status := statusFor(appErr)
	rh.recordError(string(appErr.Type))

	details := ""
	if appErr.Err != nil && status < http.StatusInternalServerError {
		details = appErr.Err.Error()
	}
	if status >= http.StatusInternalServerError {
		utils.GetLogger().Warn("request failed", map[string]interface{}{
			"path":       c.FullPath(),
			"request_id": getRequestID(c),
			"code":       appErr.Code,
			"error":      appErr.Error(),
		})
	}
	rh.Error(c, status, appErr.Code, appErr.Message, details)
}

func (rh *ResponseHelper) recordError(errType string) {
	if rh.metrics != nil {
		rh.metrics.RecordError(errType, "api")
	}
}

func statusFor(appErr *apperrors.AppError) int {
	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		if apperrors.Is(appErr, apperrors.ErrEmptyOutcomes) || apperrors.Is(appErr, apperrors.ErrEmptyTranscript) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeUpstream:
		return http.StatusBadGateway
	case apperrors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrorTypeCancelled:
		return StatusClientClosedRequest
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
