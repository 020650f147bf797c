package rockoauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rockoauth/rockoauth/storage"
)

// Argument errors for grant calls. These indicate caller bugs, not
// protocol failures, and are never rendered on the wire.
var (
	// ErrNotAClient is returned when a grant call is made without a
	// registered client
	ErrNotAClient = errors.New("rockoauth: grant requires a registered client")

	// ErrNoOwner is returned when a grant call is made without a resource owner
	ErrNoOwner = errors.New("rockoauth: grant requires a resource owner")
)

// GrantOptions carries the optional parameters of a grant call
type GrantOptions struct {
	// Scopes is the requested scope set. Duplicates are collapsed.
	Scopes []string

	// Duration sets the expiry of a newly created authorization. Zero
	// leaves it non-expiring. Repeat grants never change expiry.
	Duration time.Duration
}

// Grant delegates the requested scopes from owner to client, creating the
// (owner, client) authorization on first grant and merging scopes into it
// on repeat grants. The grant is idempotent: at most one authorization
// ever exists per pair, and re-granting a held scope changes nothing.
//
// The returned Authorization carries the exact owner instance passed in,
// so attributes attached to it by an assertion handler survive the call.
func (p *Provider) Grant(ctx context.Context, owner storage.ResourceOwner, client *storage.Client, opts GrantOptions) (*storage.Authorization, error) {
	if client == nil || client.ID == "" {
		return nil, ErrNotAClient
	}
	if owner == nil {
		return nil, ErrNoOwner
	}

	// Two passes: if creation loses the (owner, client) race to a
	// concurrent grant, the second pass finds the winner's row and merges.
	for attempt := 0; attempt < 2; attempt++ {
		auth, err := p.store.GetAuthorization(ctx, owner.OwnerKind(), owner.OwnerID(), client.ID)
		if err == nil {
			merged, changed := unionScopes(auth.Scopes, opts.Scopes)
			if changed {
				auth.Scopes = merged
				auth.UpdatedAt = time.Now()
				if err := p.store.SaveAuthorization(ctx, auth); err != nil {
					return nil, fmt.Errorf("failed to update authorization scopes: %w", err)
				}
				p.Auditor.LogGrantMerged(owner.OwnerID(), client.Identifier, merged)
			}
			if m := p.metrics(); m != nil {
				m.RecordGrantMerged(ctx, client.Identifier, changed)
			}
			auth.Owner = owner
			return auth, nil
		}
		if !errors.Is(err, storage.ErrAuthorizationNotFound) {
			return nil, fmt.Errorf("failed to look up authorization: %w", err)
		}

		now := time.Now()
		auth = &storage.Authorization{
			ID:        uuid.NewString(),
			OwnerKind: owner.OwnerKind(),
			OwnerID:   owner.OwnerID(),
			ClientID:  client.ID,
			Scopes:    NormalizeScopes(opts.Scopes),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if opts.Duration > 0 {
			auth.ExpiresAt = now.Add(opts.Duration)
		}

		saveErr := p.store.SaveAuthorization(ctx, auth)
		if saveErr == nil {
			if m := p.metrics(); m != nil {
				m.RecordGrantCreated(ctx, client.Identifier)
			}
			p.Auditor.LogGrantCreated(owner.OwnerID(), client.Identifier, auth.Scopes)
			auth.Owner = owner
			return auth, nil
		}
		if storage.IsConflict(saveErr) {
			// A concurrent grant created the pair first; merge into it
			continue
		}
		return nil, fmt.Errorf("failed to save authorization: %w", saveErr)
	}

	return nil, fmt.Errorf("rockoauth: authorization creation raced and re-read failed")
}

// GrantFor returns the existing authorization for the (owner, client)
// pair, or an unsaved handle when none exists. Unlike Grant it never
// mutates scopes or persists anything: flows use it to inspect a grant
// before deciding to change it.
func (p *Provider) GrantFor(ctx context.Context, owner storage.ResourceOwner, client *storage.Client) (*storage.Authorization, error) {
	if client == nil || client.ID == "" {
		return nil, ErrNotAClient
	}
	if owner == nil {
		return nil, ErrNoOwner
	}

	auth, err := p.store.GetAuthorization(ctx, owner.OwnerKind(), owner.OwnerID(), client.ID)
	if err == nil {
		auth.Owner = owner
		return auth, nil
	}
	if !errors.Is(err, storage.ErrAuthorizationNotFound) {
		return nil, fmt.Errorf("failed to look up authorization: %w", err)
	}

	return &storage.Authorization{
		ID:        uuid.NewString(),
		OwnerKind: owner.OwnerKind(),
		OwnerID:   owner.OwnerID(),
		ClientID:  client.ID,
		Owner:     owner,
	}, nil
}

// Revoke deletes an authorization along with its code and token material
func (p *Provider) Revoke(ctx context.Context, auth *storage.Authorization) error {
	if auth == nil || auth.ID == "" {
		return fmt.Errorf("rockoauth: revoke requires a stored authorization")
	}

	if err := p.store.DeleteAuthorization(ctx, auth.ID); err != nil {
		if errors.Is(err, storage.ErrAuthorizationNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete authorization: %w", err)
	}

	if m := p.metrics(); m != nil {
		m.RecordGrantRevoked(ctx, "revoked", 1)
	}
	p.Auditor.LogGrantRevoked(auth.OwnerID, auth.ClientID, "revoked", 1)
	return nil
}
