package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeExternal       ErrorType = "external"

	// Duel lifecycle conditions
	ErrorTypeInsufficientPool        ErrorType = "insufficient_pool"
	ErrorTypeDuplicateVote           ErrorType = "duplicate_vote"
	ErrorTypeInvalidTarget           ErrorType = "invalid_target"
	ErrorTypeAlreadyResolved         ErrorType = "already_resolved"
	ErrorTypeCollaboratorUnavailable ErrorType = "collaborator_unavailable"
	ErrorTypeConfigMissing           ErrorType = "config_missing"
	ErrorTypeInvariant               ErrorType = "invariant"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	// Retryable marks collaborator failures worth another attempt
	Retryable bool `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// As extracts the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates an error for requests that clash with current state
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
	}
}

// NewInsufficientPoolError is returned when fewer than two competitors are eligible
func NewInsufficientPoolError(guildID string, eligible int) *AppError {
	return &AppError{
		Type:       ErrorTypeInsufficientPool,
		Message:    "not enough eligible competitors to start a duel",
		StatusCode: http.StatusConflict,
		Details:    map[string]interface{}{"guild_id": guildID, "eligible": eligible},
	}
}

// NewDuplicateVoteError is returned when a voter re-selects their current choice
func NewDuplicateVoteError() *AppError {
	return &AppError{
		Type:       ErrorTypeDuplicateVote,
		Message:    "already voted for this competitor",
		StatusCode: http.StatusConflict,
	}
}

// NewInvalidTargetError is returned when a vote does not match the open duel
func NewInvalidTargetError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidTarget,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewAlreadyResolvedError is returned when a duel already has ended_at set
func NewAlreadyResolvedError(duelID string) *AppError {
	return &AppError{
		Type:       ErrorTypeAlreadyResolved,
		Message:    "duel already resolved",
		StatusCode: http.StatusConflict,
		Details:    map[string]interface{}{"duel_id": duelID},
	}
}

// NewCollaboratorUnavailableError wraps a chat platform or storage failure
func NewCollaboratorUnavailableError(collaborator string, internal error, retryable bool) *AppError {
	return &AppError{
		Type:       ErrorTypeCollaboratorUnavailable,
		Message:    collaborator + " unavailable",
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
		Retryable:  retryable,
	}
}

// NewConfigMissingError is returned when a guild has no usable configuration
func NewConfigMissingError(guildID string) *AppError {
	return &AppError{
		Type:       ErrorTypeConfigMissing,
		Message:    "guild is not configured for duels",
		StatusCode: http.StatusNotFound,
		Details:    map[string]interface{}{"guild_id": guildID},
	}
}

// NewInvariantError aborts a single operation whose data breaks a core invariant
func NewInvariantError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeInvariant,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Details:    details,
	}
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Error struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
