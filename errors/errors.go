package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Authentication: the caller could not be resolved to a user.
var (
	ErrMissingCredential = fmt.Errorf("missing credential")
	ErrInvalidCredential = fmt.Errorf("invalid credential")
	ErrUnknownUser       = fmt.Errorf("unknown user")
)

// Validation: the request itself is malformed. Never retried.
var (
	ErrEmptyBody        = fmt.Errorf("message body is empty")
	ErrBodyTooLong      = fmt.Errorf("message body exceeds maximum length")
	ErrInvalidRecipient = fmt.Errorf("invalid recipient")
)

// Authorization: the caller is authenticated but not allowed.
// Surfaced as a generic forbidden so a stranger never learns whether
// the conversation exists.
var (
	ErrNotAParticipant = fmt.Errorf("sender is not a participant")
	ErrForbidden       = fmt.Errorf("forbidden")
)

var ErrConversationNotFound = fmt.Errorf("conversation not found")

// ErrStoreUnavailable wraps transient storage failures. Retryable by the
// caller with backoff; a retried append must carry its dedup token.
var ErrStoreUnavailable = fmt.Errorf("store unavailable")

// MapToHTTPStatus folds the failure taxonomy onto HTTP status codes.
// Unrecognized errors are reported as internal rather than leaked.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrInvalidCredential),
		errors.Is(err, ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrBodyTooLong),
		errors.Is(err, ErrInvalidRecipient):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAParticipant),
		errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
