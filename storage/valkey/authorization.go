package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rockoauth/rockoauth/storage"
)

// authorizationJSON is the persisted shape of a storage.Authorization.
// The in-process owner instance is never persisted.
type authorizationJSON struct {
	ID               string    `json:"id"`
	OwnerKind        string    `json:"owner_kind"`
	OwnerID          string    `json:"owner_id"`
	ClientID         string    `json:"client_id"`
	Scopes           []string  `json:"scopes,omitempty"`
	Code             string    `json:"code,omitempty"`
	AccessTokenHash  string    `json:"access_token_hash,omitempty"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toAuthorizationJSON(a *storage.Authorization) *authorizationJSON {
	return &authorizationJSON{
		ID:               a.ID,
		OwnerKind:        a.OwnerKind,
		OwnerID:          a.OwnerID,
		ClientID:         a.ClientID,
		Scopes:           a.Scopes,
		Code:             a.Code,
		AccessTokenHash:  a.AccessTokenHash,
		RefreshTokenHash: a.RefreshTokenHash,
		ExpiresAt:        a.ExpiresAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func fromAuthorizationJSON(j *authorizationJSON) *storage.Authorization {
	return &storage.Authorization{
		ID:               j.ID,
		OwnerKind:        j.OwnerKind,
		OwnerID:          j.OwnerID,
		ClientID:         j.ClientID,
		Scopes:           j.Scopes,
		Code:             j.Code,
		AccessTokenHash:  j.AccessTokenHash,
		RefreshTokenHash: j.RefreshTokenHash,
		ExpiresAt:        j.ExpiresAt,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

// authIndex describes one unique index entry for an authorization.
type authIndex struct {
	key        string
	constraint string
}

// indexesFor lists the index keys a record occupies. Empty codes and
// digests carry no index entry, so they can never match a lookup.
func (s *Store) indexesFor(j *authorizationJSON) []authIndex {
	indexes := []authIndex{
		{s.authOwnerKey(j.OwnerKind, j.OwnerID, j.ClientID), "authorization.owner_client"},
	}
	if j.AccessTokenHash != "" {
		indexes = append(indexes, authIndex{s.authAccessKey(j.AccessTokenHash), "authorization.access_token_hash"})
	}
	if j.Code != "" {
		indexes = append(indexes, authIndex{s.authCodeKey(j.ClientID, j.Code), "authorization.client_code"})
	}
	if j.RefreshTokenHash != "" {
		indexes = append(indexes, authIndex{s.authRefreshKey(j.ClientID, j.RefreshTokenHash), "authorization.client_refresh_token_hash"})
	}
	return indexes
}

// SaveAuthorization inserts or updates an authorization. Every unique
// index entry the new record needs is claimed before the primary record
// is written; losing a claim unwinds the ones already taken and reports
// a *storage.ConflictError naming the constraint.
func (s *Store) SaveAuthorization(ctx context.Context, auth *storage.Authorization) (err error) {
	defer func(start time.Time) { s.record(ctx, "save_authorization", start, err) }(time.Now())

	if auth == nil || auth.ID == "" {
		return fmt.Errorf("invalid authorization")
	}

	key := s.authKey(auth.ID)

	var existing *authorizationJSON
	if data, getErr := s.get(ctx, key, storage.ErrAuthorizationNotFound); getErr == nil {
		existing = &authorizationJSON{}
		if err := json.Unmarshal([]byte(data), existing); err != nil {
			return fmt.Errorf("failed to unmarshal authorization: %w", err)
		}
	} else if getErr != storage.ErrAuthorizationNotFound {
		return getErr
	}

	record := toAuthorizationJSON(auth)

	var oldKeys map[string]struct{}
	if existing != nil {
		oldKeys = make(map[string]struct{})
		for _, idx := range s.indexesFor(existing) {
			oldKeys[idx.key] = struct{}{}
		}
	}

	var claimed []string
	for _, idx := range s.indexesFor(record) {
		if _, held := oldKeys[idx.key]; held {
			continue
		}
		taken, claimErr := s.claim(ctx, idx.key, auth.ID)
		if claimErr != nil {
			_ = s.del(ctx, claimed...)
			return claimErr
		}
		if !taken {
			_ = s.del(ctx, claimed...)
			return storage.NewConflictError(idx.constraint)
		}
		claimed = append(claimed, idx.key)
	}

	data, err := json.Marshal(record)
	if err != nil {
		_ = s.del(ctx, claimed...)
		return fmt.Errorf("failed to marshal authorization: %w", err)
	}
	if err := s.set(ctx, key, string(data)); err != nil {
		_ = s.del(ctx, claimed...)
		return err
	}

	// Drop index entries the new record no longer occupies
	if existing != nil {
		newKeys := make(map[string]struct{})
		for _, idx := range s.indexesFor(record) {
			newKeys[idx.key] = struct{}{}
		}
		var stale []string
		for _, idx := range s.indexesFor(existing) {
			if _, kept := newKeys[idx.key]; !kept {
				stale = append(stale, idx.key)
			}
		}
		if err := s.del(ctx, stale...); err != nil {
			return err
		}
	}

	s.logger.Debug("Saved authorization",
		"authorization_id", auth.ID,
		"client_id", auth.ClientID)
	return nil
}

// getAuthorizationByID resolves a primary record.
func (s *Store) getAuthorizationByID(ctx context.Context, id string) (*storage.Authorization, error) {
	data, err := s.get(ctx, s.authKey(id), storage.ErrAuthorizationNotFound)
	if err != nil {
		return nil, err
	}

	var j authorizationJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization: %w", err)
	}
	return fromAuthorizationJSON(&j), nil
}

// getAuthorizationByIndex resolves an index key to its primary record.
func (s *Store) getAuthorizationByIndex(ctx context.Context, indexKey string) (*storage.Authorization, error) {
	id, err := s.get(ctx, indexKey, storage.ErrAuthorizationNotFound)
	if err != nil {
		return nil, err
	}
	return s.getAuthorizationByID(ctx, id)
}

// GetAuthorization retrieves the authorization for an (owner, client) pair
func (s *Store) GetAuthorization(ctx context.Context, ownerKind, ownerID, clientID string) (auth *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization", start, err) }(time.Now())

	return s.getAuthorizationByIndex(ctx, s.authOwnerKey(ownerKind, ownerID, clientID))
}

// GetAuthorizationByCode retrieves an authorization by (client, code)
func (s *Store) GetAuthorizationByCode(ctx context.Context, clientID, code string) (auth *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization_by_code", start, err) }(time.Now())

	if code == "" {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthorizationByIndex(ctx, s.authCodeKey(clientID, code))
}

// GetAuthorizationByAccessTokenHash retrieves an authorization by its
// access token digest. The empty digest never matches.
func (s *Store) GetAuthorizationByAccessTokenHash(ctx context.Context, hash string) (auth *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization_by_access_token", start, err) }(time.Now())

	if hash == "" {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthorizationByIndex(ctx, s.authAccessKey(hash))
}

// GetAuthorizationByRefreshTokenHash retrieves an authorization by
// (client, refresh token digest). The empty digest never matches.
func (s *Store) GetAuthorizationByRefreshTokenHash(ctx context.Context, clientID, hash string) (auth *storage.Authorization, err error) {
	defer func(start time.Time) { s.record(ctx, "get_authorization_by_refresh_token", start, err) }(time.Now())

	if hash == "" {
		return nil, storage.ErrAuthorizationNotFound
	}
	return s.getAuthorizationByIndex(ctx, s.authRefreshKey(clientID, hash))
}

// deleteAuthorizationRecord removes a record and all its index entries.
func (s *Store) deleteAuthorizationRecord(ctx context.Context, auth *storage.Authorization) error {
	keys := []string{s.authKey(auth.ID)}
	for _, idx := range s.indexesFor(toAuthorizationJSON(auth)) {
		keys = append(keys, idx.key)
	}
	return s.del(ctx, keys...)
}

// DeleteAuthorization removes a single authorization
func (s *Store) DeleteAuthorization(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.record(ctx, "delete_authorization", start, err) }(time.Now())

	auth, err := s.getAuthorizationByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.deleteAuthorizationRecord(ctx, auth); err != nil {
		return err
	}
	s.logger.Debug("Deleted authorization", "authorization_id", id)
	return nil
}

// deleteAuthorizationsWhere removes every record matching the predicate,
// returning the number removed.
func (s *Store) deleteAuthorizationsWhere(ctx context.Context, match func(*storage.Authorization) bool) (int, error) {
	var doomed []*storage.Authorization
	err := s.scanKeys(ctx, s.authKey("*"), func(key string) error {
		data, getErr := s.get(ctx, key, storage.ErrAuthorizationNotFound)
		if getErr == storage.ErrAuthorizationNotFound {
			// Deleted between SCAN and GET
			return nil
		}
		if getErr != nil {
			return getErr
		}
		var j authorizationJSON
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			s.logger.Warn("Failed to unmarshal authorization, skipping",
				"key", key,
				"error", err)
			return nil
		}
		if auth := fromAuthorizationJSON(&j); match(auth) {
			doomed = append(doomed, auth)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, auth := range doomed {
		if err := s.deleteAuthorizationRecord(ctx, auth); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

// DeleteAuthorizationsForClient removes every authorization referencing
// the client, returning the number removed
func (s *Store) DeleteAuthorizationsForClient(ctx context.Context, clientID string) (count int, err error) {
	defer func(start time.Time) { s.record(ctx, "delete_authorizations_for_client", start, err) }(time.Now())

	return s.deleteAuthorizationsWhere(ctx, func(a *storage.Authorization) bool {
		return a.ClientID == clientID
	})
}

// DeleteAuthorizationsForOwner removes every authorization granted by
// the owner, returning the number removed
func (s *Store) DeleteAuthorizationsForOwner(ctx context.Context, ownerKind, ownerID string) (count int, err error) {
	defer func(start time.Time) { s.record(ctx, "delete_authorizations_for_owner", start, err) }(time.Now())

	return s.deleteAuthorizationsWhere(ctx, func(a *storage.Authorization) bool {
		return a.OwnerKind == ownerKind && a.OwnerID == ownerID
	})
}

// CountAuthorizations returns the number of stored authorizations
func (s *Store) CountAuthorizations(ctx context.Context) (count int, err error) {
	defer func(start time.Time) { s.record(ctx, "count_authorizations", start, err) }(time.Now())

	return s.countKeys(ctx, s.authKey("*"))
}
