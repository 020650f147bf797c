// Package rockoauth implements the core of an OAuth 2.0 authorization
// server: collision-safe identifier generation and hashing, the
// authorization (grant) lifecycle with scope merging, a pluggable
// assertion handler registry, token exchange for the RFC-defined grant
// types, and a protocol dispatcher that maps parsed requests onto flows.
//
// The core is transport-agnostic: it consumes already-parsed parameter
// maps and returns structured results, leaving HTTP handling, durable
// storage (behind the storage interfaces), and login/consent UI to the
// embedding application.
package rockoauth

import (
	"fmt"
	"log/slog"

	"github.com/rockoauth/rockoauth/handlers"
	"github.com/rockoauth/rockoauth/instrumentation"
	"github.com/rockoauth/rockoauth/security"
	"github.com/rockoauth/rockoauth/storage"
)

// Provider coordinates the authorization server core against a storage
// backend and a handler registry. It is safe for concurrent use; all
// shared state is read-only after construction.
type Provider struct {
	store    storage.Store
	handlers *handlers.Registry

	Config      *Config
	Logger      *slog.Logger
	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter

	instrumentation *instrumentation.Instrumentation
}

// New creates a new provider. The handler registry may be nil when the
// password and assertion grant types are not used; it must be fully
// populated before the first request is dispatched.
func New(store storage.Store, registry *handlers.Registry, config *Config) (*Provider, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if registry == nil {
		registry = handlers.NewRegistry()
	}

	logger := slog.Default()
	if config != nil && config.Logger != nil {
		logger = config.Logger
	}
	config = applyDefaults(config, logger)

	p := &Provider{
		store:    store,
		handlers: registry,
		Config:   config,
		Logger:   config.Logger,
	}

	if config.EnableAuditLogging {
		p.Auditor = security.NewAuditor(config.Logger, true)
	}
	if config.RateLimit.Rate > 0 {
		burst := config.RateLimit.Burst
		if burst <= 0 {
			burst = config.RateLimit.Rate
		}
		p.RateLimiter = security.NewRateLimiter(config.RateLimit.Rate, burst, config.Logger)
	}

	return p, nil
}

// SetInstrumentation wires OpenTelemetry instrumentation into the provider
// and, when the storage backend supports it, into storage as well.
func (p *Provider) SetInstrumentation(inst *instrumentation.Instrumentation) {
	p.instrumentation = inst

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := p.store.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
}

// Close releases background resources (the rate limiter's cleanup
// goroutine). The provider must not be used after Close.
func (p *Provider) Close() {
	if p.RateLimiter != nil {
		p.RateLimiter.Stop()
	}
}

// metrics returns the metric instruments, or nil when instrumentation is
// not wired. Callers must nil-check.
func (p *Provider) metrics() *instrumentation.Metrics {
	if p.instrumentation == nil {
		return nil
	}
	return p.instrumentation.Metrics()
}

// Handlers returns the assertion handler registry the provider was built with
func (p *Provider) Handlers() *handlers.Registry {
	return p.handlers
}

// Store returns the storage backend the provider was built with
func (p *Provider) Store() storage.Store {
	return p.store
}
