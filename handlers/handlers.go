// Package handlers holds the pluggable strategies that resolve third-party
// assertions and resource-owner passwords into accounts. A Registry is
// process-wide configuration: it is populated once at start-up, passed to
// the provider at construction, and read concurrently without locking
// during request handling. Registration calls must not race with dispatch.
package handlers

import (
	"context"

	"github.com/rockoauth/rockoauth/storage"
)

// PasswordHandler resolves a resource owner from credentials presented in a
// password grant. A nil return rejects the credentials.
type PasswordHandler func(ctx context.Context, client *storage.Client, username, password string, scopes []string) storage.ResourceOwner

// AssertionHandler resolves a resource owner from a third-party assertion.
// The owner argument carries any previously resolved account (so a handler
// may attach attributes to it); a nil return rejects the assertion.
type AssertionHandler func(ctx context.Context, client *storage.Client, assertion string, scopes []string, owner storage.ResourceOwner) storage.ResourceOwner

// AssertionFilter is a predicate run before any assertion handler. All
// filters must accept the client or the assertion is rejected.
type AssertionFilter func(client *storage.Client) bool

// Assertion is a third-party credential presented for exchange
type Assertion struct {
	// Type identifies the assertion format, selecting a registered handler
	Type string

	// Value is the opaque assertion payload
	Value string
}

// Registry maps assertion types to handlers and holds the single password
// handler plus the assertion filter chain.
type Registry struct {
	passwordHandler   PasswordHandler
	assertionHandlers map[string]AssertionHandler
	assertionFilters  []AssertionFilter
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		assertionHandlers: make(map[string]AssertionHandler),
	}
}

// HandlePasswords sets the handler invoked for resource-owner password
// grants, replacing any earlier handler.
func (r *Registry) HandlePasswords(fn PasswordHandler) {
	r.passwordHandler = fn
}

// HandleAssertions maps an assertion type to a handler. A later
// registration for the same type replaces the earlier one.
func (r *Registry) HandleAssertions(assertionType string, fn AssertionHandler) {
	r.assertionHandlers[assertionType] = fn
}

// FilterAssertions appends a predicate that must accept the client before
// any assertion handler runs.
func (r *Registry) FilterAssertions(fn AssertionFilter) {
	r.assertionFilters = append(r.assertionFilters, fn)
}

// HandlePassword runs the registered password handler. Returns nil when no
// handler is registered or the handler rejects the credentials.
func (r *Registry) HandlePassword(ctx context.Context, client *storage.Client, username, password string, scopes []string) storage.ResourceOwner {
	if r.passwordHandler == nil {
		return nil
	}
	return r.passwordHandler(ctx, client, username, password, scopes)
}

// HandleAssertion runs the filter chain and then the handler registered for
// the assertion's type. Returns nil when any filter rejects the client or
// no handler is registered for the type.
func (r *Registry) HandleAssertion(ctx context.Context, client *storage.Client, assertion Assertion, scopes []string, owner storage.ResourceOwner) storage.ResourceOwner {
	for _, filter := range r.assertionFilters {
		if !filter(client) {
			return nil
		}
	}
	handler, ok := r.assertionHandlers[assertion.Type]
	if !ok {
		return nil
	}
	return handler(ctx, client, assertion.Value, scopes, owner)
}
