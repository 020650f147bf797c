// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments. Uniqueness constraints are enforced under a single lock and
// reported via the typed conflict contract.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rockoauth/rockoauth/instrumentation"
	"github.com/rockoauth/rockoauth/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	// Client storage, keyed by public identifier
	clients       map[string]*storage.Client
	clientsByName map[string]string // name -> identifier

	// Authorization storage, keyed by row ID, with unique secondary indexes
	auths           map[string]*storage.Authorization
	byOwnerClient   map[string]string // ownerKind|ownerID|clientID -> auth ID
	byAccessHash    map[string]string // access token hash -> auth ID
	byClientCode    map[string]string // clientID|code -> auth ID
	byClientRefresh map[string]string // clientID|refresh token hash -> auth ID

	// Atomic counters for metric callbacks (lock-free reads)
	clientCount atomic.Int64
	authCount   atomic.Int64

	instrumentation *instrumentation.Instrumentation
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore        = (*Store)(nil)
	_ storage.AuthorizationStore = (*Store)(nil)
	_ storage.Store              = (*Store)(nil)
)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		clients:         make(map[string]*storage.Client),
		clientsByName:   make(map[string]string),
		auths:           make(map[string]*storage.Authorization),
		byOwnerClient:   make(map[string]string),
		byAccessHash:    make(map[string]string),
		byClientCode:    make(map[string]string),
		byClientRefresh: make(map[string]string),
		logger:          slog.Default(),
	}
}

// SetLogger sets the structured logger used by the store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation wires OpenTelemetry instrumentation and registers the
// storage size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		_ = inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientCount.Load() },
			func() int64 { return s.authCount.Load() },
		)
	}
}

// record reports a storage operation to instrumentation, if configured
func (s *Store) record(ctx context.Context, op string, start time.Time, err error) {
	if s.instrumentation == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.instrumentation.Metrics().RecordStorageOperation(ctx, op, result, float64(time.Since(start).Microseconds())/1000.0)
}

func ownerClientKey(ownerKind, ownerID, clientID string) string {
	return ownerKind + "|" + ownerID + "|" + clientID
}

func clientScopedKey(clientID, value string) string {
	return clientID + "|" + value
}

// ============================================================
// ClientStore
// ============================================================

// SaveClient inserts or updates a client, enforcing identifier and name
// uniqueness.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	defer func(start time.Time) { s.record(ctx, "save_client", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.clients[client.Identifier]; ok && existing.ID != client.ID {
		return storage.NewConflictError("client.identifier")
	}
	if id, ok := s.clientsByName[client.Name]; ok && id != client.Identifier {
		return storage.NewConflictError("client.name")
	}

	if prev, ok := s.clients[client.Identifier]; ok {
		delete(s.clientsByName, prev.Name)
	} else {
		s.clientCount.Add(1)
	}

	cp := *client
	s.clients[client.Identifier] = &cp
	s.clientsByName[client.Name] = client.Identifier
	return nil
}

// GetClient retrieves a client by its public identifier
func (s *Store) GetClient(ctx context.Context, identifier string) (c *storage.Client, err error) {
	defer func(start time.Time) { s.record(ctx, "get_client", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[identifier]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

// GetClientByName retrieves a client by its unique name
func (s *Store) GetClientByName(ctx context.Context, name string) (c *storage.Client, err error) {
	defer func(start time.Time) { s.record(ctx, "get_client_by_name", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	identifier, ok := s.clientsByName[name]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	cp := *s.clients[identifier]
	return &cp, nil
}

// DeleteClient removes a client row
func (s *Store) DeleteClient(ctx context.Context, identifier string) (err error) {
	defer func(start time.Time) { s.record(ctx, "delete_client", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[identifier]
	if !ok {
		return storage.ErrClientNotFound
	}
	delete(s.clients, identifier)
	delete(s.clientsByName, client.Name)
	s.clientCount.Add(-1)
	return nil
}

// CountClients returns the number of stored clients
func (s *Store) CountClients(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), nil
}

// ============================================================
// AuthorizationStore
// ============================================================

// SaveAuthorization inserts or updates an authorization, enforcing the
// (owner, client), access token hash, (client, code) and (client, refresh
// token hash) uniqueness constraints.
func (s *Store) SaveAuthorization(ctx context.Context, auth *storage.Authorization) (err error) {
	defer func(start time.Time) { s.record(ctx, "save_authorization", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	ocKey := ownerClientKey(auth.OwnerKind, auth.OwnerID, auth.ClientID)
	if id, ok := s.byOwnerClient[ocKey]; ok && id != auth.ID {
		return storage.NewConflictError("authorization.owner_client")
	}
	if auth.AccessTokenHash != "" {
		if id, ok := s.byAccessHash[auth.AccessTokenHash]; ok && id != auth.ID {
			return storage.NewConflictError("authorization.access_token_hash")
		}
	}
	if auth.Code != "" {
		if id, ok := s.byClientCode[clientScopedKey(auth.ClientID, auth.Code)]; ok && id != auth.ID {
			return storage.NewConflictError("authorization.client_code")
		}
	}
	if auth.RefreshTokenHash != "" {
		if id, ok := s.byClientRefresh[clientScopedKey(auth.ClientID, auth.RefreshTokenHash)]; ok && id != auth.ID {
			return storage.NewConflictError("authorization.client_refresh_token_hash")
		}
	}

	if prev, ok := s.auths[auth.ID]; ok {
		s.dropIndexes(prev)
	} else {
		s.authCount.Add(1)
	}

	cp := *auth
	cp.Scopes = append([]string(nil), auth.Scopes...)
	s.auths[auth.ID] = &cp
	s.byOwnerClient[ocKey] = auth.ID
	if auth.AccessTokenHash != "" {
		s.byAccessHash[auth.AccessTokenHash] = auth.ID
	}
	if auth.Code != "" {
		s.byClientCode[clientScopedKey(auth.ClientID, auth.Code)] = auth.ID
	}
	if auth.RefreshTokenHash != "" {
		s.byClientRefresh[clientScopedKey(auth.ClientID, auth.RefreshTokenHash)] = auth.ID
	}
	return nil
}

// dropIndexes removes the secondary index entries for a stored
// authorization. Must be called with the lock held.
func (s *Store) dropIndexes(auth *storage.Authorization) {
	delete(s.byOwnerClient, ownerClientKey(auth.OwnerKind, auth.OwnerID, auth.ClientID))
	if auth.AccessTokenHash != "" {
		delete(s.byAccessHash, auth.AccessTokenHash)
	}
	if auth.Code != "" {
		delete(s.byClientCode, clientScopedKey(auth.ClientID, auth.Code))
	}
	if auth.RefreshTokenHash != "" {
		delete(s.byClientRefresh, clientScopedKey(auth.ClientID, auth.RefreshTokenHash))
	}
}

func (s *Store) getAuthLocked(id string) (*storage.Authorization, error) {
	auth, ok := s.auths[id]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	cp := *auth
	cp.Scopes = append([]string(nil), auth.Scopes...)
	return &cp, nil
}

// GetAuthorization retrieves the authorization for an (owner, client) pair
func (s *Store) GetAuthorization(ctx context.Context, ownerKind, ownerID, clientID string) (a *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOwnerClient[ownerClientKey(ownerKind, ownerID, clientID)]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthLocked(id)
}

// GetAuthorizationByCode retrieves an authorization by (client, code)
func (s *Store) GetAuthorizationByCode(ctx context.Context, clientID, code string) (a *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization_by_code", start, err) }(time.Now())

	if code == "" {
		return nil, storage.ErrAuthorizationNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byClientCode[clientScopedKey(clientID, code)]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthLocked(id)
}

// GetAuthorizationByAccessTokenHash retrieves an authorization by its
// access token digest. The empty digest never matches, so lookups on a
// missing token cannot collide with rows that carry no token.
func (s *Store) GetAuthorizationByAccessTokenHash(ctx context.Context, hash string) (a *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization_by_access_token", start, err) }(time.Now())

	if hash == "" {
		return nil, storage.ErrAuthorizationNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAccessHash[hash]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthLocked(id)
}

// GetAuthorizationByRefreshTokenHash retrieves an authorization by
// (client, refresh token digest). The empty digest never matches.
func (s *Store) GetAuthorizationByRefreshTokenHash(ctx context.Context, clientID, hash string) (a *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization_by_refresh_token", start, err) }(time.Now())

	if hash == "" {
		return nil, storage.ErrAuthorizationNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byClientRefresh[clientScopedKey(clientID, hash)]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthLocked(id)
}

// DeleteAuthorization removes a single authorization
func (s *Store) DeleteAuthorization(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.record(ctx, "delete_authorization", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.auths[id]
	if !ok {
		return storage.ErrAuthorizationNotFound
	}
	s.dropIndexes(auth)
	delete(s.auths, id)
	s.authCount.Add(-1)
	return nil
}

// DeleteAuthorizationsForClient removes every authorization referencing the client
func (s *Store) DeleteAuthorizationsForClient(ctx context.Context, clientID string) (n int, err error) {
	defer func(start time.Time) { s.record(ctx, "delete_authorizations_for_client", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, auth := range s.auths {
		if auth.ClientID == clientID {
			s.dropIndexes(auth)
			delete(s.auths, id)
			s.authCount.Add(-1)
			n++
		}
	}
	return n, nil
}

// DeleteAuthorizationsForOwner removes every authorization granted by the owner
func (s *Store) DeleteAuthorizationsForOwner(ctx context.Context, ownerKind, ownerID string) (n int, err error) {
	defer func(start time.Time) { s.record(ctx, "delete_authorizations_for_owner", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, auth := range s.auths {
		if auth.OwnerKind == ownerKind && auth.OwnerID == ownerID {
			s.dropIndexes(auth)
			delete(s.auths, id)
			s.authCount.Add(-1)
			n++
		}
	}
	return n, nil
}

// CountAuthorizations returns the number of stored authorizations
func (s *Store) CountAuthorizations(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.auths), nil
}
