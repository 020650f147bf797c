// Package security provides security support for the authorization server:
// audit logging with PII protection, token-endpoint rate limiting, and
// expiry checks tolerant of clock skew.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Owner
// identifiers are hashed before logging; tokens and secrets are never
// logged at all.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	OwnerID   string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// Audit event types
const (
	EventClientRegistered = "client_registered"
	EventClientDestroyed  = "client_destroyed"
	EventGrantCreated     = "grant_created"
	EventGrantMerged      = "grant_merged"
	EventGrantRevoked     = "grant_revoked"
	EventTokenIssued      = "token_issued"
	EventAuthFailure      = "auth_failure"
	EventRateLimited      = "rate_limit_exceeded"
)

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"owner_id_hash", hashForLogging(event.OwnerID),
		"client_id", event.ClientID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogClientRegistered logs a new client registration
func (a *Auditor) LogClientRegistered(clientID, clientName string) {
	a.LogEvent(Event{
		Type:     EventClientRegistered,
		ClientID: clientID,
		Details: map[string]any{
			"client_name": clientName,
		},
	})
}

// LogGrantCreated logs creation of a new authorization
func (a *Auditor) LogGrantCreated(ownerID, clientID string, scopes []string) {
	a.LogEvent(Event{
		Type:     EventGrantCreated,
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"scopes": scopes,
		},
	})
}

// LogGrantMerged logs a repeat grant merged into an existing authorization
func (a *Auditor) LogGrantMerged(ownerID, clientID string, scopes []string) {
	a.LogEvent(Event{
		Type:     EventGrantMerged,
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"scopes": scopes,
		},
	})
}

// LogGrantRevoked logs revocation or cascade deletion of authorizations
func (a *Auditor) LogGrantRevoked(ownerID, clientID, reason string, count int) {
	a.LogEvent(Event{
		Type:     EventGrantRevoked,
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
			"count":  count,
		},
	})
}

// LogTokenIssued logs issuance of an access token
func (a *Auditor) LogTokenIssued(ownerID, clientID, grantType string, withRefresh bool) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type":   grantType,
			"with_refresh": withRefresh,
		},
	})
}

// LogAuthFailure logs an authentication or grant failure
func (a *Auditor) LogAuthFailure(ownerID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     EventAuthFailure,
		OwnerID:  ownerID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a token endpoint rate limit violation
func (a *Auditor) LogRateLimitExceeded(clientID string) {
	a.LogEvent(Event{
		Type:     EventRateLimited,
		ClientID: clientID,
	})
}

// hashForLogging produces a short, irreversible digest of an identifier so
// events remain correlatable without exposing the identifier itself.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
