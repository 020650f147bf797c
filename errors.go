package rockoauth

import (
	"fmt"
	"net/http"
)

// Error represents an OAuth 2.0 protocol error response.
// State carries the client's state parameter when one was present on the
// failing request, so callers can echo it back per RFC 6749.
type Error struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	State       string // Echoed client state, if any
	Status      int    // Suggested HTTP status code
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithState returns a copy of the error carrying the given state parameter.
func (e *Error) WithState(state string) *Error {
	if state == "" {
		return e
	}
	dup := *e
	dup.State = state
	return &dup
}

// Challenge renders a WWW-Authenticate challenge value for bearer-token
// failures (RFC 6750 section 3) using the given realm.
func (e *Error) Challenge(realm string) string {
	if e.Description == "" {
		return fmt.Sprintf("Bearer realm=%q, error=%q", realm, e.Code)
	}
	return fmt.Sprintf("Bearer realm=%q, error=%q, error_description=%q", realm, e.Code, e.Description)
}

// NewError creates a new protocol error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Constructors for the stable error vocabulary
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *Error {
		return NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidGrant indicates the code, credentials, or refresh token is invalid or expired
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrUnauthorizedClient indicates the client may not use the requested flow
	ErrUnauthorizedClient = func(desc string) *Error {
		return NewError(ErrorCodeUnauthorizedClient, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates the grant type is not supported
	ErrUnsupportedGrantType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedResponseType indicates the response type is not supported
	ErrUnsupportedResponseType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
	}

	// ErrInvalidScope indicates the requested scope is malformed or exceeds the grant
	ErrInvalidScope = func(desc string) *Error {
		return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrRedirectURIMismatch indicates the redirect URI does not match the one
	// the authorization was issued against
	ErrRedirectURIMismatch = func(desc string) *Error {
		return NewError(ErrorCodeRedirectURIMismatch, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the presented access token is not recognized
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrExpiredToken indicates the presented access token or code is past its expiry
	ErrExpiredToken = func(desc string) *Error {
		return NewError(ErrorCodeExpiredToken, desc, http.StatusUnauthorized)
	}

	// ErrInsufficientScope indicates the token does not carry a required scope
	ErrInsufficientScope = func(desc string) *Error {
		return NewError(ErrorCodeInsufficientScope, desc, http.StatusForbidden)
	}

	// ErrAccessDenied indicates the resource owner denied the request
	ErrAccessDenied = func(desc string) *Error {
		return NewError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
	}

	// ErrRateLimitExceeded indicates the client exceeded the token endpoint rate limit
	ErrRateLimitExceeded = func(desc string) *Error {
		return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
	}
)
