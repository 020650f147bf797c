package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rockoauth/rockoauth/storage"
)

// clientJSON is the persisted shape of a storage.Client.
type clientJSON struct {
	ID          string    `json:"id"`
	Identifier  string    `json:"identifier"`
	SecretHash  string    `json:"secret_hash"`
	Name        string    `json:"name"`
	RedirectURI string    `json:"redirect_uri"`
	AccountKind string    `json:"account_kind,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ID:          c.ID,
		Identifier:  c.Identifier,
		SecretHash:  c.SecretHash,
		Name:        c.Name,
		RedirectURI: c.RedirectURI,
		AccountKind: c.AccountKind,
		AccountID:   c.AccountID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	return &storage.Client{
		ID:          j.ID,
		Identifier:  j.Identifier,
		SecretHash:  j.SecretHash,
		Name:        j.Name,
		RedirectURI: j.RedirectURI,
		AccountKind: j.AccountKind,
		AccountID:   j.AccountID,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// SaveClient inserts or updates a client. The public identifier is the
// primary key; the name is kept unique through an index key.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	defer func(start time.Time) { s.record(ctx, "save_client", start, err) }(time.Now())

	if client == nil || client.Identifier == "" {
		return fmt.Errorf("invalid client")
	}

	key := s.clientKey(client.Identifier)

	var existing *clientJSON
	if data, getErr := s.get(ctx, key, storage.ErrClientNotFound); getErr == nil {
		existing = &clientJSON{}
		if err := json.Unmarshal([]byte(data), existing); err != nil {
			return fmt.Errorf("failed to unmarshal client: %w", err)
		}
	} else if getErr != storage.ErrClientNotFound {
		return getErr
	}

	if existing != nil && existing.ID != client.ID {
		return storage.NewConflictError("client.identifier")
	}

	if existing == nil || existing.Name != client.Name {
		taken, claimErr := s.claim(ctx, s.clientNameKey(client.Name), client.Identifier)
		if claimErr != nil {
			return claimErr
		}
		if !taken {
			return storage.NewConflictError("client.name")
		}
	}

	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	if err := s.set(ctx, key, string(data)); err != nil {
		return err
	}

	if existing != nil && existing.Name != client.Name {
		if err := s.del(ctx, s.clientNameKey(existing.Name)); err != nil {
			return err
		}
	}

	s.logger.Debug("Saved client", "client_id", client.Identifier)
	return nil
}

// GetClient retrieves a client by its public identifier
func (s *Store) GetClient(ctx context.Context, identifier string) (client *storage.Client, err error) {
	defer func(start time.Time) { s.record(ctx, "get_client", start, err) }(time.Now())

	data, err := s.get(ctx, s.clientKey(identifier), storage.ErrClientNotFound)
	if err != nil {
		return nil, err
	}

	var j clientJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return fromClientJSON(&j), nil
}

// GetClientByName retrieves a client by its unique name
func (s *Store) GetClientByName(ctx context.Context, name string) (client *storage.Client, err error) {
	defer func(start time.Time) { s.record(ctx, "get_client_by_name", start, err) }(time.Now())

	identifier, err := s.get(ctx, s.clientNameKey(name), storage.ErrClientNotFound)
	if err != nil {
		return nil, err
	}
	return s.GetClient(ctx, identifier)
}

// DeleteClient removes a client and its name index. Dependent
// authorizations are removed by the caller's cascade, not here.
func (s *Store) DeleteClient(ctx context.Context, identifier string) (err error) {
	defer func(start time.Time) { s.record(ctx, "delete_client", start, err) }(time.Now())

	client, err := s.GetClient(ctx, identifier)
	if err != nil {
		return err
	}

	if err := s.del(ctx, s.clientKey(identifier), s.clientNameKey(client.Name)); err != nil {
		return err
	}
	s.logger.Debug("Deleted client", "client_id", identifier)
	return nil
}

// CountClients returns the number of stored clients
func (s *Store) CountClients(ctx context.Context) (count int, err error) {
	defer func(start time.Time) { s.record(ctx, "count_clients", start, err) }(time.Now())
	return s.countKeys(ctx, s.clientKey("*"))
}
