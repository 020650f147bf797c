// Package valkey provides a Valkey-backed implementation of the storage
// interfaces. Entities are stored as JSON values; uniqueness constraints
// are enforced through secondary index keys claimed with SET NX, and
// violations surface as *storage.ConflictError so the core can classify
// and recover from them.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/rockoauth/rockoauth/instrumentation"
	"github.com/rockoauth/rockoauth/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "rockoauth:"

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "rockoauth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
}

// Compile-time interface checks
var (
	_ storage.ClientStore        = (*Store)(nil)
	_ storage.AuthorizationStore = (*Store)(nil)
	_ storage.Store              = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetInstrumentation wires OpenTelemetry instrumentation into the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
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

// Key layout. Primary records are JSON values; index keys map a unique
// attribute to the primary key and double as the uniqueness constraint.
func (s *Store) clientKey(identifier string) string {
	return s.prefix + "client:" + identifier
}

func (s *Store) clientNameKey(name string) string {
	return s.prefix + "client_name:" + name
}

func (s *Store) authKey(id string) string {
	return s.prefix + "auth:" + id
}

func (s *Store) authOwnerKey(ownerKind, ownerID, clientID string) string {
	return s.prefix + "auth_owner:" + ownerKind + "|" + ownerID + "|" + clientID
}

func (s *Store) authAccessKey(hash string) string {
	return s.prefix + "auth_access:" + hash
}

func (s *Store) authCodeKey(clientID, code string) string {
	return s.prefix + "auth_code:" + clientID + "|" + code
}

func (s *Store) authRefreshKey(clientID, hash string) string {
	return s.prefix + "auth_refresh:" + clientID + "|" + hash
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// get fetches a key's value, mapping the nil reply to notFound.
func (s *Store) get(ctx context.Context, key string, notFound error) (string, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return "", notFound
		}
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// set writes a key unconditionally.
func (s *Store) set(ctx context.Context, key, value string) error {
	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// claim attempts to take an index key for owner via SET NX. It reports
// taken=false without error when another owner already holds the key.
func (s *Store) claim(ctx context.Context, key, owner string) (bool, error) {
	result, err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(owner).Nx().Build()).ToString()
	if err == nil && result == "OK" {
		return true, nil
	}
	if err != nil && !isNilError(err) {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}

	// NX lost; the key may still be our own from a prior save of the
	// same record.
	current, err := s.get(ctx, key, nil)
	if err != nil {
		return false, err
	}
	return current == owner, nil
}

// del removes keys, tolerating already-missing ones.
func (s *Store) del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// scanKeys iterates all keys matching pattern, invoking fn once per
// distinct key.
func (s *Store) scanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		for _, key := range result.Elements {
			// SCAN can return duplicates across iterations
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if err := fn(key); err != nil {
				return err
			}
		}
		cursor = result.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

// countKeys counts keys matching pattern.
func (s *Store) countKeys(ctx context.Context, pattern string) (int, error) {
	count := 0
	err := s.scanKeys(ctx, pattern, func(string) error {
		count++
		return nil
	})
	return count, err
}
