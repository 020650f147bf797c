package rockoauth

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestGrantCreatesAuthorization(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")
	owner := &testUser{id: "bob"}

	auth, err := p.Grant(ctx, owner, client, GrantOptions{})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	if auth.OwnerKind != "user" || auth.OwnerID != "bob" {
		t.Errorf("owner reference = (%q, %q)", auth.OwnerKind, auth.OwnerID)
	}
	if auth.ClientID != client.ID {
		t.Errorf("ClientID = %q, want %q", auth.ClientID, client.ID)
	}
	if len(auth.Scopes) != 0 {
		t.Errorf("Scopes = %v, want empty", auth.Scopes)
	}
	if !auth.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero (non-expiring)", auth.ExpiresAt)
	}
}

func TestGrantWithDuration(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")

	auth, err := p.Grant(ctx, &testUser{id: "bob"}, client, GrantOptions{Duration: 5 * time.Hour})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	want := time.Now().Add(5 * time.Hour)
	if diff := auth.ExpiresAt.Sub(want); diff < -2*time.Second || diff > 2*time.Second {
		t.Errorf("ExpiresAt = %v, want about %v", auth.ExpiresAt, want)
	}
}

func TestGrantScopeUnion(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")
	owner := &testUser{id: "bob"}

	grants := [][]string{
		{"foo", "bar"},
		{"qux"},
		{"qux"},
	}
	var lastScopes []string
	for _, scopes := range grants {
		auth, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: scopes})
		if err != nil {
			t.Fatalf("Grant(%v) error = %v", scopes, err)
		}
		lastScopes = auth.Scopes
	}

	if want := []string{"bar", "foo", "qux"}; !reflect.DeepEqual(lastScopes, want) {
		t.Errorf("final scopes = %v, want %v", lastScopes, want)
	}

	// Idempotence: still exactly one row for the pair
	if n, _ := p.Store().CountAuthorizations(ctx); n != 1 {
		t.Errorf("CountAuthorizations() = %d, want 1", n)
	}
}

func TestGrantRegrantHeldScopeIsNoOp(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")
	owner := &testUser{id: "bob"}

	first, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: []string{"foo"}})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	again, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: []string{"foo", "foo"}})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	if again.ID != first.ID {
		t.Error("repeat grant created a second authorization")
	}
	if !reflect.DeepEqual(again.Scopes, []string{"foo"}) {
		t.Errorf("scopes = %v, want [foo]", again.Scopes)
	}
}

func TestGrantPreservesOwnerInstance(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")

	owner := &testUser{id: "bob", email: "bob@example.com"}
	auth, err := p.Grant(ctx, owner, client, GrantOptions{})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if auth.Owner != owner {
		t.Error("Authorization.Owner is not the instance passed to Grant")
	}

	// Repeat grants re-attach the instance passed to them
	other := &testUser{id: "bob", email: "new@example.com"}
	auth, err = p.Grant(ctx, other, client, GrantOptions{})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if auth.Owner != other {
		t.Error("repeat grant did not attach the passed-in owner instance")
	}
}

func TestGrantRepeatKeepsExpiry(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")
	owner := &testUser{id: "bob"}

	first, err := p.Grant(ctx, owner, client, GrantOptions{Duration: time.Hour})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	again, err := p.Grant(ctx, owner, client, GrantOptions{Duration: 5 * time.Hour})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	if !again.ExpiresAt.Equal(first.ExpiresAt) {
		t.Errorf("expiry changed on repeat grant: %v -> %v", first.ExpiresAt, again.ExpiresAt)
	}
}

func TestGrantArgumentErrors(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")

	if _, err := p.Grant(ctx, &testUser{id: "bob"}, nil, GrantOptions{}); !errors.Is(err, ErrNotAClient) {
		t.Errorf("Grant(nil client) error = %v, want ErrNotAClient", err)
	}
	if _, err := p.Grant(ctx, nil, client, GrantOptions{}); !errors.Is(err, ErrNoOwner) {
		t.Errorf("Grant(nil owner) error = %v, want ErrNoOwner", err)
	}
}

func TestGrantFor(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")
	owner := &testUser{id: "bob"}

	handle, err := p.GrantFor(ctx, owner, client)
	if err != nil {
		t.Fatalf("GrantFor() error = %v", err)
	}
	if handle.Owner != owner {
		t.Error("GrantFor() handle does not carry the owner instance")
	}

	// A bare handle persists nothing
	if n, _ := p.Store().CountAuthorizations(ctx); n != 0 {
		t.Errorf("CountAuthorizations() = %d, want 0 after GrantFor", n)
	}

	granted, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: []string{"foo"}})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	found, err := p.GrantFor(ctx, owner, client)
	if err != nil {
		t.Fatalf("GrantFor() error = %v", err)
	}
	if found.ID != granted.ID {
		t.Error("GrantFor() did not resolve the stored authorization")
	}
}

func TestRevoke(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	client, _ := registerTestClient(t, p, "My App")
	owner := &testUser{id: "bob"}

	auth, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: []string{"foo"}})
	if err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	if err := p.Revoke(ctx, auth); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if n, _ := p.Store().CountAuthorizations(ctx); n != 0 {
		t.Errorf("CountAuthorizations() = %d, want 0 after revoke", n)
	}

	// Revoking an already-deleted grant is not an error
	if err := p.Revoke(ctx, auth); err != nil {
		t.Errorf("second Revoke() error = %v", err)
	}
}

func TestRevokeOwnerGrants(t *testing.T) {
	p := newTestProvider(t, nil)
	ctx := context.Background()
	appOne, _ := registerTestClient(t, p, "App One")
	appTwo, _ := registerTestClient(t, p, "App Two")
	bob := &testUser{id: "bob"}
	alice := &testUser{id: "alice"}

	if _, err := p.Grant(ctx, bob, appOne, GrantOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Grant(ctx, bob, appTwo, GrantOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Grant(ctx, alice, appOne, GrantOptions{}); err != nil {
		t.Fatal(err)
	}

	removed, err := p.RevokeOwnerGrants(ctx, bob)
	if err != nil {
		t.Fatalf("RevokeOwnerGrants() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("RevokeOwnerGrants() = %d, want 2", removed)
	}
	if n, _ := p.Store().CountAuthorizations(ctx); n != 1 {
		t.Errorf("CountAuthorizations() = %d, want 1", n)
	}
}
