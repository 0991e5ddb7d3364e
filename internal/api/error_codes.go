// internal/api/error_codes.go
package api

// API error codes not carried by an AppError.
const (
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// uploads
	ErrorFileMissing  = "FILE_MISSING"
	ErrorFileInvalid  = "FILE_INVALID"
	ErrorFileTooLarge = "FILE_TOO_LARGE"

	// artifacts
	ErrorArtifactKindInvalid = "ARTIFACT_KIND_INVALID"

	// websocket
	ErrorUpgradeFailed = "WEBSOCKET_UPGRADE_FAILED"
)
