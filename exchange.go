package rockoauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rockoauth/rockoauth/handlers"
	"github.com/rockoauth/rockoauth/ident"
	"github.com/rockoauth/rockoauth/internal/util"
	"github.com/rockoauth/rockoauth/security"
	"github.com/rockoauth/rockoauth/storage"
)

// issueTokens turns a valid authorization into an access token response.
// Token values are generated against a storage-backed acceptance predicate
// and only their hashes persisted; if the save still loses a uniqueness
// race to a concurrent issue, the material is regenerated and the save
// retried a bounded number of times.
//
// A refresh token is created when the flow calls for one and the
// authorization has none yet, and rotated on refresh exchanges when
// rotation is configured. Its plaintext appears in the response only when
// freshly created, since only the hash is held afterwards.
func (p *Provider) issueTokens(ctx context.Context, auth *storage.Authorization, client *storage.Client, grantType string, withRefresh bool) (*TokenResponse, error) {
	rotate := grantType == GrantTypeRefreshToken && p.Config.RotateRefreshTokens
	needRefresh := withRefresh && (auth.RefreshTokenHash == "" || rotate)

	for attempt := 0; attempt < ident.MaxAttempts; attempt++ {
		accessToken, err := ident.GenerateUnique(func(candidate string) bool {
			_, lookupErr := p.store.GetAuthorizationByAccessTokenHash(ctx, ident.Hash(candidate))
			return errors.Is(lookupErr, storage.ErrAuthorizationNotFound)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate access token: %w", err)
		}

		var refreshToken string
		if needRefresh {
			refreshToken, err = ident.GenerateUnique(func(candidate string) bool {
				_, lookupErr := p.store.GetAuthorizationByRefreshTokenHash(ctx, auth.ClientID, ident.Hash(candidate))
				return errors.Is(lookupErr, storage.ErrAuthorizationNotFound)
			})
			if err != nil {
				return nil, fmt.Errorf("failed to generate refresh token: %w", err)
			}
		}

		now := time.Now()
		auth.AccessTokenHash = ident.Hash(accessToken)
		if refreshToken != "" {
			auth.RefreshTokenHash = ident.Hash(refreshToken)
		}
		// A grant-specified expiry still in the future is honored;
		// otherwise the configured default lifetime applies from now.
		if auth.ExpiresAt.IsZero() || auth.ExpiresAt.Before(now) {
			auth.ExpiresAt = now.Add(p.Config.DefaultTokenTTL)
		}
		auth.UpdatedAt = now

		saveErr := p.store.SaveAuthorization(ctx, auth)
		if saveErr == nil {
			if m := p.metrics(); m != nil {
				m.RecordTokenIssued(ctx, grantType, refreshToken != "")
			}
			p.Auditor.LogTokenIssued(auth.OwnerID, client.Identifier, grantType, refreshToken != "")
			p.Logger.Debug("issued access token",
				"client_id", client.Identifier,
				"grant_type", grantType,
				"token_prefix", util.SafeTruncate(accessToken, 8))

			return &TokenResponse{
				AccessToken:  accessToken,
				TokenType:    TokenTypeBearer,
				ExpiresIn:    auth.ExpiresIn(now),
				RefreshToken: refreshToken,
				Scope:        FormatScope(auth.Scopes),
			}, nil
		}
		if storage.IsConflict(saveErr) {
			// Two concurrent issues picked colliding material. Regenerate
			// and retry.
			if m := p.metrics(); m != nil {
				m.RecordIdentifierRetry(ctx, "access_token")
			}
			p.Logger.Warn("token uniqueness conflict, regenerating", "attempt", attempt+1)
			continue
		}
		return nil, fmt.Errorf("failed to save authorization: %w", saveErr)
	}

	return nil, fmt.Errorf("failed to issue access token: %w", ident.ErrGenerateExhausted)
}

// ExchangeAuthorizationCode exchanges a one-time authorization code for
// tokens. The redirect URI must match the one the code was issued against,
// and the code must not have expired. The code is cleared on success.
func (p *Provider) ExchangeAuthorizationCode(ctx context.Context, client *storage.Client, code, redirectURI string) (*TokenResponse, error) {
	auth, err := p.store.GetAuthorizationByCode(ctx, client.ID, code)
	if errors.Is(err, storage.ErrAuthorizationNotFound) {
		return nil, ErrInvalidGrant("authorization code is invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}

	if redirectURI == "" || redirectURI != client.RedirectURI {
		return nil, ErrRedirectURIMismatch("redirect_uri does not match")
	}
	if auth.Expired(time.Now()) {
		return nil, ErrInvalidGrant("authorization code has expired")
	}

	auth.Code = ""
	return p.issueTokens(ctx, auth, client, GrantTypeAuthorizationCode, true)
}

// ExchangeClientCredentials issues a token for a client acting on its own
// behalf. The client is its own resource owner for the resulting grant.
func (p *Provider) ExchangeClientCredentials(ctx context.Context, client *storage.Client, scopes []string) (*TokenResponse, error) {
	auth, err := p.Grant(ctx, client, client, GrantOptions{Scopes: scopes})
	if err != nil {
		return nil, err
	}
	return p.issueTokens(ctx, auth, client, GrantTypeClientCredentials, false)
}

// ExchangePassword resolves a resource owner through the registered
// password handler and issues tokens for the resulting grant.
func (p *Provider) ExchangePassword(ctx context.Context, client *storage.Client, username, password string, scopes []string) (*TokenResponse, error) {
	owner := p.handlers.HandlePassword(ctx, client, username, password, scopes)
	if owner == nil {
		p.Auditor.LogAuthFailure("", client.Identifier, "password_rejected")
		return nil, ErrInvalidGrant("username or password is invalid")
	}

	auth, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: scopes})
	if err != nil {
		return nil, err
	}
	return p.issueTokens(ctx, auth, client, GrantTypePassword, true)
}

// ExchangeAssertion resolves a resource owner through the handler
// registered for the assertion's type and issues tokens for the resulting
// grant. An unhandled type or a rejecting filter fails the exchange.
func (p *Provider) ExchangeAssertion(ctx context.Context, client *storage.Client, assertion handlers.Assertion, scopes []string) (*TokenResponse, error) {
	owner := p.handlers.HandleAssertion(ctx, client, assertion, scopes, nil)
	if owner == nil {
		p.Auditor.LogAuthFailure("", client.Identifier, "assertion_rejected")
		return nil, ErrInvalidGrant("assertion is invalid")
	}

	auth, err := p.Grant(ctx, owner, client, GrantOptions{Scopes: scopes})
	if err != nil {
		return nil, err
	}
	return p.issueTokens(ctx, auth, client, GrantTypeAssertion, true)
}

// ExchangeRefreshToken issues a new access token against the authorization
// holding the presented refresh token. The refresh token is reused, or
// rotated when Config.RotateRefreshTokens is set.
func (p *Provider) ExchangeRefreshToken(ctx context.Context, client *storage.Client, refreshToken string) (*TokenResponse, error) {
	auth, err := p.store.GetAuthorizationByRefreshTokenHash(ctx, client.ID, ident.Hash(refreshToken))
	if errors.Is(err, storage.ErrAuthorizationNotFound) {
		return nil, ErrInvalidGrant("refresh token is invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if p.Config.RotateRefreshTokens {
		// Invalidate the presented token; issueTokens generates its successor
		auth.RefreshTokenHash = ""
	}
	return p.issueTokens(ctx, auth, client, GrantTypeRefreshToken, true)
}

// ValidateAccessToken resolves a presented access token to its
// authorization. Fails with invalid_token when the token is unknown and
// expired_token when it is past its expiry; expiry is checked lazily here,
// never swept in the background.
func (p *Provider) ValidateAccessToken(ctx context.Context, accessToken string) (*storage.Authorization, error) {
	auth, err := p.store.GetAuthorizationByAccessTokenHash(ctx, ident.Hash(accessToken))
	if errors.Is(err, storage.ErrAuthorizationNotFound) {
		if m := p.metrics(); m != nil {
			m.RecordTokenValidated(ctx, "invalid")
		}
		return nil, ErrInvalidToken("access token is invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}

	if security.IsExpired(auth.ExpiresAt) {
		if m := p.metrics(); m != nil {
			m.RecordTokenValidated(ctx, "expired")
		}
		return nil, ErrExpiredToken("access token has expired")
	}

	if m := p.metrics(); m != nil {
		m.RecordTokenValidated(ctx, "valid")
	}
	return auth, nil
}
