package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authorization server core
type Metrics struct {
	// Grant lifecycle metrics
	GrantsCreated metric.Int64Counter
	GrantsMerged  metric.Int64Counter
	GrantsRevoked metric.Int64Counter

	// Token metrics
	TokensIssued     metric.Int64Counter
	TokensValidated  metric.Int64Counter
	ExchangeFailures metric.Int64Counter

	// Client registry metrics
	ClientsRegistered metric.Int64Counter

	// Identifier service metrics
	IdentifierRetries metric.Int64Counter

	// Storage metrics
	StorageOperationTotal      metric.Int64Counter
	StorageOperationDuration   metric.Float64Histogram
	StorageClientsCount        metric.Int64ObservableGauge
	StorageAuthorizationsCount metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	providerMeter := inst.Meter("provider")
	storageMeter := inst.Meter("storage")

	var err error
	m.GrantsCreated, err = providerMeter.Int64Counter(
		"oauth.grants.created",
		metric.WithDescription("Number of authorizations created"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.created counter: %w", err)
	}

	m.GrantsMerged, err = providerMeter.Int64Counter(
		"oauth.grants.merged",
		metric.WithDescription("Number of repeat grants merged into an existing authorization"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.merged counter: %w", err)
	}

	m.GrantsRevoked, err = providerMeter.Int64Counter(
		"oauth.grants.revoked",
		metric.WithDescription("Number of authorizations revoked or cascade-deleted"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.revoked counter: %w", err)
	}

	m.TokensIssued, err = providerMeter.Int64Counter(
		"oauth.tokens.issued",
		metric.WithDescription("Number of access tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.TokensValidated, err = providerMeter.Int64Counter(
		"oauth.tokens.validated",
		metric.WithDescription("Number of access token validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.validated counter: %w", err)
	}

	m.ExchangeFailures, err = providerMeter.Int64Counter(
		"oauth.exchange.failures",
		metric.WithDescription("Number of failed token exchanges by error code"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.failures counter: %w", err)
	}

	m.ClientsRegistered, err = providerMeter.Int64Counter(
		"oauth.clients.registered",
		metric.WithDescription("Number of clients registered"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create clients.registered counter: %w", err)
	}

	m.IdentifierRetries, err = providerMeter.Int64Counter(
		"oauth.identifier.retries",
		metric.WithDescription("Number of identifier regenerations after uniqueness conflicts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create identifier.retries counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageClientsCount, err = storageMeter.Int64ObservableGauge(
		"storage.clients.count",
		metric.WithDescription("Current number of stored clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	m.StorageAuthorizationsCount, err = storageMeter.Int64ObservableGauge(
		"storage.authorizations.count",
		metric.WithDescription("Current number of stored authorizations"),
		metric.WithUnit("{authorization}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.authorizations.count gauge: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordGrantCreated records a newly created authorization
func (m *Metrics) RecordGrantCreated(ctx context.Context, clientID string) {
	m.GrantsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordGrantMerged records a repeat grant merged into an existing authorization
func (m *Metrics) RecordGrantMerged(ctx context.Context, clientID string, scopesChanged bool) {
	m.GrantsMerged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("scopes_changed", scopesChanged),
	))
}

// RecordGrantRevoked records a revoked or cascade-deleted authorization
func (m *Metrics) RecordGrantRevoked(ctx context.Context, reason string, count int64) {
	m.GrantsRevoked.Add(ctx, count, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordTokenIssued records an issued access token
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string, withRefresh bool) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.Bool("with_refresh", withRefresh),
	))
}

// RecordTokenValidated records an access token validation attempt
func (m *Metrics) RecordTokenValidated(ctx context.Context, result string) {
	m.TokensValidated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordExchangeFailure records a failed token exchange
func (m *Metrics) RecordExchangeFailure(ctx context.Context, grantType, errorCode string) {
	m.ExchangeFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("error_code", errorCode),
	))
}

// RecordClientRegistration records a client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context) {
	m.ClientsRegistered.Add(ctx, 1)
}

// RecordIdentifierRetry records an identifier regeneration after a conflict
func (m *Metrics) RecordIdentifierRetry(ctx context.Context, kind string) {
	m.IdentifierRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
