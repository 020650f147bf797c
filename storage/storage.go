// Package storage defines the persistence contract consumed by the
// authorization server core: entities for clients and authorizations,
// typed lookup errors, and a conflict classification for uniqueness
// violations. Backends include in-memory and Valkey implementations.
package storage

import (
	"context"
	"errors"
	"time"
)

// Typed not-found errors. Lookups return these rather than backend errors
// so the core never inspects backend-specific failures.
var (
	// ErrClientNotFound is returned when no client matches the lookup
	ErrClientNotFound = errors.New("client not found")

	// ErrAuthorizationNotFound is returned when no authorization matches the lookup
	ErrAuthorizationNotFound = errors.New("authorization not found")
)

// Owner identifies an account that participates in delegation. Accounts are
// polymorphic: the core persists only the (kind, id) pair and never depends
// on concrete account types.
type Owner interface {
	// OwnerKind returns a stable type discriminator (e.g. "user")
	OwnerKind() string

	// OwnerID returns a stable identifier unique within the kind
	OwnerID() string
}

// ResourceOwner is an account capable of granting delegated access to its
// resources. IsResourceOwner is a marker method.
type ResourceOwner interface {
	Owner
	IsResourceOwner()
}

// ClientOwner is an account capable of owning registered clients.
// OwnsClients is a marker method. A resource-owner account typically
// implements both capabilities.
type ClientOwner interface {
	Owner
	OwnsClients()
}

// Client represents a registered application
type Client struct {
	// ID is the opaque, stable row identifier
	ID string

	// Identifier is the public client_id, unique across all clients
	Identifier string

	// SecretHash is the bcrypt hash of the client secret. The plaintext
	// secret is returned to the registrant exactly once.
	SecretHash string

	// Name is the human-readable client name, unique across all clients
	Name string

	// RedirectURI is the registered redirection endpoint. Always a
	// well-formed absolute URI free of CR/LF characters.
	RedirectURI string

	// AccountKind and AccountID reference the account that registered and
	// owns this client
	AccountKind string
	AccountID   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientOwnerKind is the owner kind under which a client acts as its own
// resource owner in the client-credentials flow.
const ClientOwnerKind = "client"

// OwnerKind implements Owner: a client granting itself access
func (c *Client) OwnerKind() string { return ClientOwnerKind }

// OwnerID implements Owner
func (c *Client) OwnerID() string { return c.ID }

// IsResourceOwner marks a client as able to grant access to itself, which
// is what the client-credentials flow does.
func (c *Client) IsResourceOwner() {}

// Authorization represents a delegation of scopes from an owner to a
// client, plus any in-flight code and token material.
type Authorization struct {
	// ID is the opaque, stable row identifier
	ID string

	// OwnerKind and OwnerID reference the granting account. At most one
	// authorization exists per (owner, client) pair.
	OwnerKind string
	OwnerID   string

	// Owner is the in-process account instance the grant was issued
	// against. It is attached by the core on every grant call and is not
	// part of the persisted record.
	Owner ResourceOwner `json:"-"`

	// ClientID references Client.ID
	ClientID string

	// Scopes is the granted scope set: deduplicated, case-sensitive,
	// sorted. Never contains duplicates.
	Scopes []string

	// Code is the one-time authorization code, cleared once exchanged
	Code string

	// AccessTokenHash is the digest of the current access token, unique
	// across all authorizations. Empty when no token has been issued.
	AccessTokenHash string

	// RefreshTokenHash is the digest of the current refresh token.
	// (ClientID, RefreshTokenHash) is unique when present.
	RefreshTokenHash string

	// ExpiresAt is the token expiry. The zero value means non-expiring.
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpiresIn returns the number of whole seconds until expiry, or zero for
// a non-expiring authorization.
func (a *Authorization) ExpiresIn(now time.Time) int64 {
	if a.ExpiresAt.IsZero() {
		return 0
	}
	remaining := int64(a.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the authorization is past its expiry at the
// given instant. Non-expiring authorizations never expire.
func (a *Authorization) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now)
}

// ClientStore persists registered clients.
//
// SaveClient must report uniqueness violations (on Name or Identifier) as a
// *ConflictError distinguishable via IsConflict; any other failure is
// treated as fatal by the core. All methods accept context.Context.
type ClientStore interface {
	// SaveClient inserts or updates a client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by its public identifier
	GetClient(ctx context.Context, identifier string) (*Client, error)

	// GetClientByName retrieves a client by its unique name
	GetClientByName(ctx context.Context, name string) (*Client, error)

	// DeleteClient removes a client row. Cascading deletion of dependent
	// authorizations is issued by the core, not the store.
	DeleteClient(ctx context.Context, identifier string) error

	// CountClients returns the number of stored clients
	CountClients(ctx context.Context) (int, error)
}

// AuthorizationStore persists authorizations.
//
// SaveAuthorization must report uniqueness violations (on the
// (owner, client) pair, the access token hash, (client, code), or
// (client, refresh token hash)) as a *ConflictError; the core recovers
// from token-material conflicts by regenerating, and from (owner, client)
// conflicts by re-reading and merging.
type AuthorizationStore interface {
	// SaveAuthorization inserts or updates an authorization
	SaveAuthorization(ctx context.Context, auth *Authorization) error

	// GetAuthorization retrieves the authorization for an (owner, client) pair
	GetAuthorization(ctx context.Context, ownerKind, ownerID, clientID string) (*Authorization, error)

	// GetAuthorizationByCode retrieves an authorization by (client, code)
	GetAuthorizationByCode(ctx context.Context, clientID, code string) (*Authorization, error)

	// GetAuthorizationByAccessTokenHash retrieves an authorization by its
	// access token digest. The empty digest never matches.
	GetAuthorizationByAccessTokenHash(ctx context.Context, hash string) (*Authorization, error)

	// GetAuthorizationByRefreshTokenHash retrieves an authorization by
	// (client, refresh token digest). The empty digest never matches.
	GetAuthorizationByRefreshTokenHash(ctx context.Context, clientID, hash string) (*Authorization, error)

	// DeleteAuthorization removes a single authorization
	DeleteAuthorization(ctx context.Context, id string) error

	// DeleteAuthorizationsForClient removes every authorization referencing
	// the client, returning the number removed
	DeleteAuthorizationsForClient(ctx context.Context, clientID string) (int, error)

	// DeleteAuthorizationsForOwner removes every authorization granted by
	// the owner, returning the number removed
	DeleteAuthorizationsForOwner(ctx context.Context, ownerKind, ownerID string) (int, error)

	// CountAuthorizations returns the number of stored authorizations
	CountAuthorizations(ctx context.Context) (int, error)
}

// Store combines both persistence interfaces. Backends in this module
// implement the full set.
type Store interface {
	ClientStore
	AuthorizationStore
}
