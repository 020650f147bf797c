package rockoauth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegisterClientValidation(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	owner := &testUser{id: "bob"}

	tests := []struct {
		name        string
		clientName  string
		redirectURI string
		field       string
	}{
		{
			name:        "missing name",
			clientName:  "",
			redirectURI: "http://example.com/cb",
			field:       "name",
		},
		{
			name:        "missing redirect uri",
			clientName:  "My App",
			redirectURI: "",
			field:       "redirect_uri",
		},
		{
			name:        "relative redirect uri",
			clientName:  "My App",
			redirectURI: "/cb",
			field:       "redirect_uri",
		},
		{
			name:        "redirect uri with CRLF",
			clientName:  "My App",
			redirectURI: "http://example.com/c\r\nb",
			field:       "redirect_uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.RegisterClient(ctx, tt.clientName, tt.redirectURI, owner)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v (%T), want *ValidationError", err, err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("Fields = %v, want an entry for %q", verr.Fields, tt.field)
			}
		})
	}
}

func TestRegisterClient(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()

	client, secret, err := p.RegisterClient(ctx, "My App", "http://example.com/cb", &testUser{id: "bob"})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	if client.Identifier == "" {
		t.Error("client identifier is empty")
	}
	if secret == "" {
		t.Error("client secret is empty")
	}
	if client.SecretHash == secret {
		t.Error("secret stored in plaintext")
	}
	if !strings.HasPrefix(client.SecretHash, "$2a$") {
		t.Errorf("SecretHash = %q, want a bcrypt hash", client.SecretHash)
	}
	if client.AccountKind != "user" || client.AccountID != "bob" {
		t.Errorf("owner reference = (%q, %q)", client.AccountKind, client.AccountID)
	}

	// The returned secret authenticates the client
	authed, err := p.AuthenticateClient(ctx, client.Identifier, secret)
	if err != nil {
		t.Fatalf("AuthenticateClient() error = %v", err)
	}
	if authed.ID != client.ID {
		t.Error("authenticated a different client")
	}
}

func TestRegisterClientDuplicateName(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	registerTestClient(t, p, "My App")

	_, _, err := p.RegisterClient(ctx, "My App", "http://example.com/cb", &testUser{id: "bob"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v (%T), want *ValidationError", err, err)
	}
	if verr.Fields["name"] != "is already taken" {
		t.Errorf("Fields[name] = %q, want %q", verr.Fields["name"], "is already taken")
	}
}

func TestAuthenticateClientFailures(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")

	tests := []struct {
		name       string
		identifier string
		secret     string
	}{
		{"wrong secret", client.Identifier, "not-the-secret"},
		{"unknown client", "no-such-client", "whatever"},
		{"empty secret", client.Identifier, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.AuthenticateClient(ctx, tt.identifier, tt.secret)
			protocolError(t, err, ErrorCodeInvalidClient)
		})
	}
}

func TestLookupClient(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")

	found, err := p.LookupClient(ctx, client.Identifier)
	if err != nil {
		t.Fatalf("LookupClient() error = %v", err)
	}
	if found == nil || found.ID != client.ID {
		t.Errorf("LookupClient() = %+v", found)
	}

	missing, err := p.LookupClient(ctx, "no-such-client")
	if err != nil {
		t.Fatalf("LookupClient(unknown) error = %v", err)
	}
	if missing != nil {
		t.Errorf("LookupClient(unknown) = %+v, want nil", missing)
	}
}

func TestDestroyClientCascades(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	doomed, _ := registerTestClient(t, p, "Doomed App")
	survivor, _ := registerTestClient(t, p, "Survivor App")

	bob := &testUser{id: "bob"}
	alice := &testUser{id: "alice"}
	for _, owner := range []*testUser{bob, alice} {
		if _, err := p.Grant(ctx, owner, doomed, GrantOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.Grant(ctx, bob, survivor, GrantOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := p.DestroyClient(ctx, doomed); err != nil {
		t.Fatalf("DestroyClient() error = %v", err)
	}

	if found, _ := p.LookupClient(ctx, doomed.Identifier); found != nil {
		t.Error("destroyed client still resolves")
	}
	if n, _ := p.Store().CountAuthorizations(ctx); n != 1 {
		t.Errorf("CountAuthorizations() = %d, want 1 (only the survivor's grant)", n)
	}
}
