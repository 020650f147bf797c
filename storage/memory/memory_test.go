package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rockoauth/rockoauth/storage"
)

func testClient(id, identifier, name string) *storage.Client {
	now := time.Now()
	return &storage.Client{
		ID:          id,
		Identifier:  identifier,
		SecretHash:  "$2a$10$hash",
		Name:        name,
		RedirectURI: "http://example.com/cb",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testAuthorization(id, ownerID, clientID string) *storage.Authorization {
	now := time.Now()
	return &storage.Authorization{
		ID:        id,
		OwnerKind: "user",
		OwnerID:   ownerID,
		ClientID:  clientID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestClientRoundtrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	client := testClient("row-1", "app-1", "My App")
	if err := s.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := s.GetClient(ctx, "app-1")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.Name != "My App" || got.ID != "row-1" {
		t.Errorf("GetClient() = %+v", got)
	}

	byName, err := s.GetClientByName(ctx, "My App")
	if err != nil {
		t.Fatalf("GetClientByName() error = %v", err)
	}
	if byName.Identifier != "app-1" {
		t.Errorf("GetClientByName() identifier = %q", byName.Identifier)
	}

	if _, err := s.GetClient(ctx, "missing"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient(missing) error = %v, want ErrClientNotFound", err)
	}
}

func TestClientReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveClient(ctx, testClient("row-1", "app-1", "My App")); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, _ := s.GetClient(ctx, "app-1")
	got.Name = "Mutated"

	again, _ := s.GetClient(ctx, "app-1")
	if again.Name != "My App" {
		t.Error("mutating a returned client leaked into the store")
	}
}

func TestClientUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveClient(ctx, testClient("row-1", "app-1", "My App")); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	tests := []struct {
		name       string
		client     *storage.Client
		constraint string
	}{
		{
			name:       "duplicate identifier",
			client:     testClient("row-2", "app-1", "Other App"),
			constraint: "client.identifier",
		},
		{
			name:       "duplicate name",
			client:     testClient("row-2", "app-2", "My App"),
			constraint: "client.name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SaveClient(ctx, tt.client)
			var conflict *storage.ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("SaveClient() error = %v, want *ConflictError", err)
			}
			if conflict.Constraint != tt.constraint {
				t.Errorf("constraint = %q, want %q", conflict.Constraint, tt.constraint)
			}
		})
	}

	// Re-saving the same row is an update, not a conflict
	updated := testClient("row-1", "app-1", "Renamed App")
	if err := s.SaveClient(ctx, updated); err != nil {
		t.Fatalf("SaveClient(update) error = %v", err)
	}
	if _, err := s.GetClientByName(ctx, "My App"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Error("old name index entry survived a rename")
	}
	if _, err := s.GetClientByName(ctx, "Renamed App"); err != nil {
		t.Errorf("GetClientByName(new name) error = %v", err)
	}
}

func TestDeleteClient(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveClient(ctx, testClient("row-1", "app-1", "My App")); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	if err := s.DeleteClient(ctx, "app-1"); err != nil {
		t.Fatalf("DeleteClient() error = %v", err)
	}
	if _, err := s.GetClient(ctx, "app-1"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Error("client survived deletion")
	}
	if _, err := s.GetClientByName(ctx, "My App"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Error("name index survived deletion")
	}
	if n, _ := s.CountClients(ctx); n != 0 {
		t.Errorf("CountClients() = %d, want 0", n)
	}
}

func TestAuthorizationRoundtrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	auth := testAuthorization("auth-1", "owner-1", "client-1")
	auth.Scopes = []string{"bar", "foo"}
	auth.Code = "the-code"
	auth.AccessTokenHash = "access-hash"
	auth.RefreshTokenHash = "refresh-hash"

	if err := s.SaveAuthorization(ctx, auth); err != nil {
		t.Fatalf("SaveAuthorization() error = %v", err)
	}

	lookups := []struct {
		name string
		get  func() (*storage.Authorization, error)
	}{
		{"by owner and client", func() (*storage.Authorization, error) {
			return s.GetAuthorization(ctx, "user", "owner-1", "client-1")
		}},
		{"by code", func() (*storage.Authorization, error) {
			return s.GetAuthorizationByCode(ctx, "client-1", "the-code")
		}},
		{"by access token hash", func() (*storage.Authorization, error) {
			return s.GetAuthorizationByAccessTokenHash(ctx, "access-hash")
		}},
		{"by refresh token hash", func() (*storage.Authorization, error) {
			return s.GetAuthorizationByRefreshTokenHash(ctx, "client-1", "refresh-hash")
		}},
	}
	for _, l := range lookups {
		t.Run(l.name, func(t *testing.T) {
			got, err := l.get()
			if err != nil {
				t.Fatalf("lookup error = %v", err)
			}
			if got.ID != "auth-1" {
				t.Errorf("lookup resolved %q, want auth-1", got.ID)
			}
		})
	}
}

func TestEmptyDigestNeverMatches(t *testing.T) {
	s := New()
	ctx := context.Background()

	// A row with no token material must not be reachable via empty lookups
	if err := s.SaveAuthorization(ctx, testAuthorization("auth-1", "owner-1", "client-1")); err != nil {
		t.Fatalf("SaveAuthorization() error = %v", err)
	}

	if _, err := s.GetAuthorizationByAccessTokenHash(ctx, ""); !errors.Is(err, storage.ErrAuthorizationNotFound) {
		t.Errorf("empty access hash lookup error = %v, want ErrAuthorizationNotFound", err)
	}
	if _, err := s.GetAuthorizationByRefreshTokenHash(ctx, "client-1", ""); !errors.Is(err, storage.ErrAuthorizationNotFound) {
		t.Errorf("empty refresh hash lookup error = %v, want ErrAuthorizationNotFound", err)
	}
	if _, err := s.GetAuthorizationByCode(ctx, "client-1", ""); !errors.Is(err, storage.ErrAuthorizationNotFound) {
		t.Errorf("empty code lookup error = %v, want ErrAuthorizationNotFound", err)
	}
}

func TestAuthorizationUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := testAuthorization("auth-1", "owner-1", "client-1")
	first.Code = "the-code"
	first.AccessTokenHash = "access-hash"
	first.RefreshTokenHash = "refresh-hash"
	if err := s.SaveAuthorization(ctx, first); err != nil {
		t.Fatalf("SaveAuthorization() error = %v", err)
	}

	tests := []struct {
		name       string
		mutate     func(a *storage.Authorization)
		constraint string
	}{
		{
			name:       "duplicate owner client pair",
			mutate:     func(a *storage.Authorization) {},
			constraint: "authorization.owner_client",
		},
		{
			name: "duplicate access token hash",
			mutate: func(a *storage.Authorization) {
				a.OwnerID = "owner-2"
				a.AccessTokenHash = "access-hash"
			},
			constraint: "authorization.access_token_hash",
		},
		{
			name: "duplicate code for the same client",
			mutate: func(a *storage.Authorization) {
				a.OwnerID = "owner-2"
				a.Code = "the-code"
			},
			constraint: "authorization.client_code",
		},
		{
			name: "duplicate refresh token hash for the same client",
			mutate: func(a *storage.Authorization) {
				a.OwnerID = "owner-2"
				a.RefreshTokenHash = "refresh-hash"
			},
			constraint: "authorization.client_refresh_token_hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup := testAuthorization("auth-2", "owner-1", "client-1")
			tt.mutate(dup)

			err := s.SaveAuthorization(ctx, dup)
			var conflict *storage.ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("SaveAuthorization() error = %v, want *ConflictError", err)
			}
			if conflict.Constraint != tt.constraint {
				t.Errorf("constraint = %q, want %q", conflict.Constraint, tt.constraint)
			}
		})
	}

	// The same code under a different client is not a conflict
	other := testAuthorization("auth-3", "owner-1", "client-2")
	other.Code = "the-code"
	if err := s.SaveAuthorization(ctx, other); err != nil {
		t.Errorf("SaveAuthorization(other client, same code) error = %v", err)
	}
}

func TestUpdateReleasesStaleIndexes(t *testing.T) {
	s := New()
	ctx := context.Background()

	auth := testAuthorization("auth-1", "owner-1", "client-1")
	auth.Code = "old-code"
	if err := s.SaveAuthorization(ctx, auth); err != nil {
		t.Fatalf("SaveAuthorization() error = %v", err)
	}

	auth.Code = ""
	auth.AccessTokenHash = "new-hash"
	if err := s.SaveAuthorization(ctx, auth); err != nil {
		t.Fatalf("SaveAuthorization(update) error = %v", err)
	}

	if _, err := s.GetAuthorizationByCode(ctx, "client-1", "old-code"); !errors.Is(err, storage.ErrAuthorizationNotFound) {
		t.Error("exchanged code still resolves")
	}
	if _, err := s.GetAuthorizationByAccessTokenHash(ctx, "new-hash"); err != nil {
		t.Errorf("GetAuthorizationByAccessTokenHash() error = %v", err)
	}
	if n, _ := s.CountAuthorizations(ctx); n != 1 {
		t.Errorf("CountAuthorizations() = %d, want 1", n)
	}
}

func TestCascadingDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()

	seed := []*storage.Authorization{
		testAuthorization("auth-1", "owner-1", "client-1"),
		testAuthorization("auth-2", "owner-2", "client-1"),
		testAuthorization("auth-3", "owner-1", "client-2"),
	}
	for _, a := range seed {
		if err := s.SaveAuthorization(ctx, a); err != nil {
			t.Fatalf("SaveAuthorization(%s) error = %v", a.ID, err)
		}
	}

	n, err := s.DeleteAuthorizationsForClient(ctx, "client-1")
	if err != nil {
		t.Fatalf("DeleteAuthorizationsForClient() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteAuthorizationsForClient() = %d, want 2", n)
	}

	n, err = s.DeleteAuthorizationsForOwner(ctx, "user", "owner-1")
	if err != nil {
		t.Fatalf("DeleteAuthorizationsForOwner() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteAuthorizationsForOwner() = %d, want 1", n)
	}

	if count, _ := s.CountAuthorizations(ctx); count != 0 {
		t.Errorf("CountAuthorizations() = %d, want 0", count)
	}
}

func TestDeleteAuthorization(t *testing.T) {
	s := New()
	ctx := context.Background()

	auth := testAuthorization("auth-1", "owner-1", "client-1")
	auth.AccessTokenHash = "access-hash"
	if err := s.SaveAuthorization(ctx, auth); err != nil {
		t.Fatalf("SaveAuthorization() error = %v", err)
	}

	if err := s.DeleteAuthorization(ctx, "auth-1"); err != nil {
		t.Fatalf("DeleteAuthorization() error = %v", err)
	}
	if _, err := s.GetAuthorizationByAccessTokenHash(ctx, "access-hash"); !errors.Is(err, storage.ErrAuthorizationNotFound) {
		t.Error("access token index survived deletion")
	}
	if err := s.DeleteAuthorization(ctx, "auth-1"); !errors.Is(err, storage.ErrAuthorizationNotFound) {
		t.Errorf("second DeleteAuthorization() error = %v, want ErrAuthorizationNotFound", err)
	}
}
