package rockoauth

// TokenResponse represents an OAuth 2.0 token endpoint success payload
type TokenResponse struct {
	// AccessToken is the plaintext access token. It is returned to the
	// caller exactly once; only its hash is held server-side.
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is the refresh token (optional)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-delimited scope of the access token
	Scope string `json:"scope,omitempty"`

	// State is the client's state parameter, echoed when present
	State string `json:"state,omitempty"`
}

// AuthorizationResponse represents an authorization endpoint success payload.
// Depending on the response type it carries a one-time code, an access
// token, or both.
type AuthorizationResponse struct {
	// Code is the one-time authorization code ("code" and "code_and_token")
	Code string `json:"code,omitempty"`

	// AccessToken is the plaintext access token ("token" and "code_and_token")
	AccessToken string `json:"access_token,omitempty"`

	// ExpiresIn is the access token lifetime in seconds, if one was issued
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scope is the space-delimited granted scope
	Scope string `json:"scope,omitempty"`

	// State is the client's state parameter, echoed when present
	State string `json:"state,omitempty"`
}

// ErrorResponse represents an OAuth error payload as rendered on the wire
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`

	// State is the client's state parameter, echoed when present
	State string `json:"state,omitempty"`
}

// ErrorResponseFor converts a protocol error into its wire payload
func ErrorResponseFor(err *Error) *ErrorResponse {
	return &ErrorResponse{
		Error:            err.Code,
		ErrorDescription: err.Description,
		State:            err.State,
	}
}

// TokenTypeBearer is the token_type value for all tokens issued by this core
const TokenTypeBearer = "bearer"
