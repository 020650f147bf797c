package rockoauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rockoauth/rockoauth/handlers"
	"github.com/rockoauth/rockoauth/storage"
	"github.com/rockoauth/rockoauth/storage/memory"
)

// testUser is a resource-owner account used across the package tests. It
// also owns clients, like a typical user model would.
type testUser struct {
	id string

	// email is set by assertion handlers in tests that verify the owner
	// instance survives the grant call
	email string
}

func (u *testUser) OwnerKind() string { return "user" }
func (u *testUser) OwnerID() string   { return u.id }
func (u *testUser) IsResourceOwner()  {}
func (u *testUser) OwnsClients()      {}

func newTestProvider(t *testing.T, config *Config) *Provider {
	t.Helper()

	p, err := New(memory.New(), handlers.NewRegistry(), config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

// registerTestClient registers a client and returns it with its secret
func registerTestClient(t *testing.T, p *Provider, name string) (*storage.Client, string) {
	t.Helper()

	client, secret, err := p.RegisterClient(context.Background(), name, "http://example.com/cb", &testUser{id: "client-owner"})
	if err != nil {
		t.Fatalf("RegisterClient(%q) error = %v", name, err)
	}
	return client, secret
}

// protocolError asserts err is a *Error with the given code
func protocolError(t *testing.T, err error, code string) *Error {
	t.Helper()

	var oauthErr *Error
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %v (%T), want *Error", err, err)
	}
	if oauthErr.Code != code {
		t.Fatalf("error code = %q, want %q (description %q)", oauthErr.Code, code, oauthErr.Description)
	}
	return oauthErr
}

func TestNew(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Error("New(nil store) succeeded, want error")
	}

	p := newTestProvider(t, nil)
	if p.Config.Realm != "oauth" {
		t.Errorf("default realm = %q, want %q", p.Config.Realm, "oauth")
	}
	if p.Config.DefaultTokenTTL != time.Hour {
		t.Errorf("default token TTL = %v, want 1h", p.Config.DefaultTokenTTL)
	}
	if p.RateLimiter != nil {
		t.Error("rate limiter created without a configured rate")
	}
	if p.Auditor != nil {
		t.Error("auditor created without audit logging enabled")
	}
}

func TestNewWithOptions(t *testing.T) {
	p := newTestProvider(t, &Config{
		Realm:              "api",
		RateLimit:          RateLimitConfig{Rate: 10},
		EnableAuditLogging: true,
	})
	if p.Config.Realm != "api" {
		t.Errorf("realm = %q, want %q", p.Config.Realm, "api")
	}
	if p.RateLimiter == nil {
		t.Error("rate limiter not created")
	}
	if p.Auditor == nil {
		t.Error("auditor not created")
	}
}

func TestProviderAccessors(t *testing.T) {
	p := newTestProvider(t, nil)
	if p.Store() == nil {
		t.Error("Store() returned nil")
	}
	if p.Handlers() == nil {
		t.Error("Handlers() returned nil")
	}
}
