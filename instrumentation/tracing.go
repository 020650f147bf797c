package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY: Never record actual credential values (access tokens, refresh
// tokens, authorization codes, client secrets) in traces or metrics. Only
// record metadata such as grant types, expiry times, and validation results.
const (
	AttrClientID     = "oauth.client_id"     // Public client identifier (non-secret)
	AttrOwnerKind    = "oauth.owner_kind"    // Owner type discriminator
	AttrScope        = "oauth.scope"         // Requested or granted scopes
	AttrGrantType    = "oauth.grant_type"    // OAuth grant type
	AttrResponseType = "oauth.response_type" // OAuth response type
	AttrExpiresIn    = "oauth.expires_in"    // Token expiry duration in seconds
	AttrError        = "oauth.error"         // Protocol error code

	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
