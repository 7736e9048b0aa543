package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpInvalidQueryError    = "invalid_query"
	HttpValidationError      = "validation_failed"
	HttpDuplicateEventError  = "duplicate_event"
	HttpStorageUnavailable   = "storage_unavailable"
	HttpProvisionFailedError = "provision_failed"
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
