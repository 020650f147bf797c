package rockoauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rockoauth/rockoauth/ident"
	"github.com/rockoauth/rockoauth/storage"
)

// dummyBcryptHash is compared against when a client lookup fails, so
// authentication takes the same time whether or not the client exists.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// RegisterClient validates and registers a new client application. The
// client identifier and secret are generated here; the plaintext secret is
// returned exactly once and only its bcrypt hash is stored.
//
// Validation failures return a *ValidationError naming the failing fields.
// A storage-level name conflict (a registration race that slipped past the
// pre-check) is surfaced the same way; identifier conflicts are recovered
// by regenerating and retrying.
func (p *Provider) RegisterClient(ctx context.Context, name, redirectURI string, owner storage.ClientOwner) (*storage.Client, string, error) {
	if verr := validateClientParams(name, redirectURI); verr != nil {
		return nil, "", verr
	}

	// Pre-check name uniqueness so the common case fails cleanly before
	// identifiers are generated. The storage constraint remains the source
	// of truth under concurrency.
	if _, err := p.store.GetClientByName(ctx, name); err == nil {
		return nil, "", &ValidationError{Fields: map[string]string{"name": "is already taken"}}
	} else if !errors.Is(err, storage.ErrClientNotFound) {
		return nil, "", fmt.Errorf("failed to check client name: %w", err)
	}

	secret := ident.Random()
	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	client := &storage.Client{
		ID:          uuid.NewString(),
		SecretHash:  string(secretHash),
		Name:        name,
		RedirectURI: redirectURI,
	}
	if owner != nil {
		client.AccountKind = owner.OwnerKind()
		client.AccountID = owner.OwnerID()
	}

	for attempt := 0; attempt < ident.MaxAttempts; attempt++ {
		identifier, err := ident.GenerateUnique(func(candidate string) bool {
			_, lookupErr := p.store.GetClient(ctx, candidate)
			return errors.Is(lookupErr, storage.ErrClientNotFound)
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate client identifier: %w", err)
		}

		now := time.Now()
		client.Identifier = identifier
		client.CreatedAt = now
		client.UpdatedAt = now

		saveErr := p.store.SaveClient(ctx, client)
		if saveErr == nil {
			if m := p.metrics(); m != nil {
				m.RecordClientRegistration(ctx)
			}
			p.Auditor.LogClientRegistered(client.Identifier, client.Name)
			p.Logger.Info("registered new client",
				"client_id", client.Identifier,
				"client_name", client.Name)
			return client, secret, nil
		}

		var conflict *storage.ConflictError
		if errors.As(saveErr, &conflict) && conflict.Constraint == "client.name" {
			// Lost a registration race on the name
			return nil, "", &ValidationError{Fields: map[string]string{"name": "is already taken"}}
		}
		if storage.IsConflict(saveErr) {
			// Identifier collision with a concurrent registration; pick a
			// fresh one and try again.
			if m := p.metrics(); m != nil {
				m.RecordIdentifierRetry(ctx, "client_identifier")
			}
			p.Logger.Warn("client identifier conflict, regenerating", "attempt", attempt+1)
			continue
		}
		return nil, "", fmt.Errorf("failed to save client: %w", saveErr)
	}

	return nil, "", fmt.Errorf("failed to register client: %w", ident.ErrGenerateExhausted)
}

// AuthenticateClient looks up a client by identifier and verifies the
// secret against the stored bcrypt hash. The bcrypt comparison always
// runs, so response timing does not reveal whether the client exists.
// Returns ErrInvalidClient on any authentication failure.
func (p *Provider) AuthenticateClient(ctx context.Context, identifier, secret string) (*storage.Client, error) {
	client, lookupErr := p.store.GetClient(ctx, identifier)

	hashToCompare := dummyBcryptHash
	if lookupErr == nil && client.SecretHash != "" {
		hashToCompare = client.SecretHash
	}

	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(secret))

	if lookupErr != nil {
		if !errors.Is(lookupErr, storage.ErrClientNotFound) {
			return nil, fmt.Errorf("failed to look up client: %w", lookupErr)
		}
		p.Auditor.LogAuthFailure("", identifier, "unknown_client")
		return nil, ErrInvalidClient("client authentication failed")
	}
	if bcryptErr != nil {
		p.Auditor.LogAuthFailure("", identifier, "bad_client_secret")
		return nil, ErrInvalidClient("client authentication failed")
	}

	return client, nil
}

// LookupClient returns the client registered under the given identifier,
// or nil when none exists.
func (p *Provider) LookupClient(ctx context.Context, identifier string) (*storage.Client, error) {
	client, err := p.store.GetClient(ctx, identifier)
	if errors.Is(err, storage.ErrClientNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	return client, nil
}

// DestroyClient removes a client and cascades to every authorization
// referencing it. The cascade is issued here rather than relying on
// storage-side triggers.
func (p *Provider) DestroyClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ID == "" {
		return ErrNotAClient
	}

	removed, err := p.store.DeleteAuthorizationsForClient(ctx, client.ID)
	if err != nil {
		return fmt.Errorf("failed to delete authorizations for client: %w", err)
	}
	if err := p.store.DeleteClient(ctx, client.Identifier); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	if m := p.metrics(); m != nil {
		m.RecordGrantRevoked(ctx, "client_destroyed", int64(removed))
	}
	p.Auditor.LogGrantRevoked("", client.Identifier, "client_destroyed", removed)
	p.Logger.Info("destroyed client",
		"client_id", client.Identifier,
		"cascaded_authorizations", removed)
	return nil
}

// RevokeOwnerGrants removes every authorization granted by the owner.
// Called when a resource-owner account is destroyed; returns the number of
// authorizations removed.
func (p *Provider) RevokeOwnerGrants(ctx context.Context, owner storage.Owner) (int, error) {
	if owner == nil {
		return 0, ErrNoOwner
	}

	removed, err := p.store.DeleteAuthorizationsForOwner(ctx, owner.OwnerKind(), owner.OwnerID())
	if err != nil {
		return 0, fmt.Errorf("failed to delete authorizations for owner: %w", err)
	}

	if m := p.metrics(); m != nil {
		m.RecordGrantRevoked(ctx, "owner_destroyed", int64(removed))
	}
	p.Auditor.LogGrantRevoked(owner.OwnerID(), "", "owner_destroyed", removed)
	return removed, nil
}
