package rockoauth

import (
	"log/slog"
	"time"
)

// DefaultTokenTTL is the default access token lifetime
const DefaultTokenTTL = 3600 * time.Second

// Config holds the provider configuration
type Config struct {
	// Realm names this protection space in WWW-Authenticate challenge
	// responses.
	Realm string

	// EnforceSSL rejects credential-bearing requests that did not arrive
	// over TLS before any flow is dispatched.
	EnforceSSL bool

	// DefaultTokenTTL is the access token lifetime applied when a grant
	// does not specify its own duration. Default: one hour.
	DefaultTokenTTL time.Duration

	// RotateRefreshTokens issues a fresh refresh token on every refresh
	// exchange, invalidating the presented one. When false, the refresh
	// token presented by the client stays valid and is reused.
	RotateRefreshTokens bool

	// RateLimit configures per-client token endpoint rate limiting
	RateLimit RateLimitConfig

	// EnableAuditLogging enables security audit logging. Auth events,
	// grant changes, and violations are logged with owner IDs hashed.
	EnableAuditLogging bool

	// Logger for structured logging (optional, uses slog.Default if not provided)
	Logger *slog.Logger
}

// RateLimitConfig holds token endpoint rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per client. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per client.
	Burst int
}

// applyDefaults fills in unset configuration values
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config == nil {
		config = &Config{}
	}
	if config.DefaultTokenTTL <= 0 {
		config.DefaultTokenTTL = DefaultTokenTTL
	}
	if config.Realm == "" {
		config.Realm = "oauth"
	}
	if config.Logger == nil {
		config.Logger = logger
	}
	return config
}
