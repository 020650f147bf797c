package rockoauth

// Wire-level parameter names from RFC 6749. These are stable protocol
// vocabulary and must not be renamed.
const (
	ParamAccessToken   = "access_token"
	ParamAssertion     = "assertion"
	ParamAssertionType = "assertion_type"
	ParamClientID      = "client_id"
	ParamClientSecret  = "client_secret"
	ParamCode          = "code"
	ParamDuration      = "duration"
	ParamError         = "error"
	ParamErrorDesc     = "error_description"
	ParamExpiresIn     = "expires_in"
	ParamGrantType     = "grant_type"
	ParamOAuthToken    = "oauth_token"
	ParamPassword      = "password"
	ParamRedirectURI   = "redirect_uri"
	ParamRefreshToken  = "refresh_token"
	ParamResponseType  = "response_type"
	ParamScope         = "scope"
	ParamState         = "state"
	ParamUsername      = "username"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeAssertion         = "assertion"
	GrantTypeRefreshToken      = "refresh_token"
)

// Response types accepted at the authorization endpoint.
const (
	ResponseTypeCode         = "code"
	ResponseTypeToken        = "token"
	ResponseTypeCodeAndToken = "code_and_token"
)

// OAuth error codes. These are the stable strings rendered to callers.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeRedirectURIMismatch     = "redirect_uri_mismatch"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeExpiredToken            = "expired_token"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)
