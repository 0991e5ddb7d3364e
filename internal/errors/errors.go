// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError for status-code mapping.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeUpstream     ErrorType = "upstream_error"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancelled    ErrorType = "cancelled"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
)

// Alignment failure sentinels. Match with errors.Is.
var (
	ErrEmptyOutcomes   = errors.New("no learning outcomes after normalization")
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrResponseParse   = errors.New("model response is not valid JSON")
	ErrResponseSchema  = errors.New("model response is missing the segments list")
)

// AppError is the error shape every service returns to the API layer.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // stable code surfaced to clients
}

// Error implements error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with a generated code.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

func NewUpstreamError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpstream, message, originalError)
}

func NewUnavailableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnavailable, message, originalError)
}

func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// EmptyOutcomesError is returned when the outcome catalogue is empty.
func EmptyOutcomesError() *AppError {
	e := NewValidationError("at least one learning outcome is required", ErrEmptyOutcomes)
	e.Code = "EMPTY_OUTCOMES"
	return e
}

// EmptyTranscriptError is returned when the transcript is blank.
func EmptyTranscriptError() *AppError {
	e := NewValidationError("transcript is empty", ErrEmptyTranscript)
	e.Code = "EMPTY_TRANSCRIPT"
	return e
}

// ResponseParseError wraps a JSON decoding failure of model output.
func ResponseParseError(cause error) *AppError {
	e := NewUpstreamError("model response could not be parsed", fmt.Errorf("%w: %v", ErrResponseParse, cause))
	e.Code = "RESPONSE_PARSE_ERROR"
	return e
}

// ResponseSchemaError reports JSON that lacks the segments list.
func ResponseSchemaError(detail string) *AppError {
	e := NewUpstreamError("model response has an unexpected shape", fmt.Errorf("%w: %s", ErrResponseSchema, detail))
	e.Code = "RESPONSE_SCHEMA_ERROR"
	return e
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

func IsValidationError(err error) bool { return IsType(err, ErrorTypeValidation) }

func IsNotFoundError(err error) bool { return IsType(err, ErrorTypeNotFound) }

func IsUpstreamError(err error) bool { return IsType(err, ErrorTypeUpstream) }

func IsConflictError(err error) bool { return IsType(err, ErrorTypeConflict) }

// As is re-exported so callers need not import both errors packages.
func As(err error, target any) bool { return errors.As(err, target) }

// Is is re-exported for the same reason as As.
func Is(err, target error) bool { return errors.Is(err, target) }

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUpstream:
		return "UPSTREAM_ERROR"
	case ErrorTypeUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeCancelled:
		return "CANCELLED"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError prefixes message onto err, keeping an existing AppError's type and code.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
