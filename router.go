package rockoauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rockoauth/rockoauth/handlers"
	"github.com/rockoauth/rockoauth/ident"
	"github.com/rockoauth/rockoauth/storage"
)

// Request carries the already-parsed fields of an inbound protocol
// request. The embedding application extracts these from its transport;
// the core never sees the HTTP layer itself.
type Request struct {
	// Params holds the request parameters (query or form encoded)
	Params map[string]string

	// AuthorizationHeader is the raw Authorization header value, if any
	AuthorizationHeader string

	// TLS reports whether the request arrived over a secure transport
	TLS bool
}

func (r *Request) param(name string) string {
	if r == nil || r.Params == nil {
		return ""
	}
	return r.Params[name]
}

// Flow is a classified, validated request bound to an authenticated or
// resolved client. Token endpoint flows are completed with Exchange;
// authorization endpoint flows with GrantAccess or DenyAccess once the
// embedding application has established the resource owner's decision.
type Flow struct {
	provider *Provider
	client   *storage.Client

	grantType    string
	responseType string
	scopes       []string
	duration     time.Duration
	state        string

	code         string
	redirectURI  string
	username     string
	password     string
	assertion    handlers.Assertion
	refreshToken string
}

// Client returns the client the flow was resolved against
func (f *Flow) Client() *storage.Client { return f.client }

// Scopes returns the normalized requested scopes
func (f *Flow) Scopes() []string { return f.scopes }

// State returns the client's state parameter, if one was present
func (f *Flow) State() string { return f.state }

// GrantType returns the grant type for token endpoint flows, or ""
func (f *Flow) GrantType() string { return f.grantType }

// ResponseType returns the response type for authorization endpoint
// flows, or ""
func (f *Flow) ResponseType() string { return f.responseType }

// Dispatch classifies a request on grant_type/response_type, validates
// the parameters the flow requires, and resolves the client. A request
// carrying a grant_type is a token endpoint exchange and its client is
// authenticated with its secret; otherwise the request is an
// authorization endpoint flow and the client is only looked up. All
// failures are protocol errors carrying the echoed state.
func (p *Provider) Dispatch(ctx context.Context, req *Request) (*Flow, error) {
	state := req.param(ParamState)

	if p.Config.EnforceSSL && !req.TLS {
		return nil, ErrInvalidRequest("must be made over HTTPS").WithState(state)
	}

	if req.param(ParamGrantType) != "" {
		return p.dispatchExchange(ctx, req, state)
	}
	return p.dispatchAuthorization(ctx, req, state)
}

func (p *Provider) dispatchExchange(ctx context.Context, req *Request, state string) (*Flow, error) {
	grantType := req.param(ParamGrantType)

	var required []string
	switch grantType {
	case GrantTypeAuthorizationCode:
		required = []string{ParamCode, ParamRedirectURI}
	case GrantTypeClientCredentials:
	case GrantTypePassword:
		required = []string{ParamUsername, ParamPassword}
	case GrantTypeAssertion:
		required = []string{ParamAssertionType, ParamAssertion}
	case GrantTypeRefreshToken:
		required = []string{ParamRefreshToken}
	default:
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("the grant type %s is not supported", grantType)).WithState(state)
	}
	required = append(required, ParamClientID, ParamClientSecret)

	if err := requireParams(req, required); err != nil {
		return nil, err.WithState(state)
	}

	clientID := req.param(ParamClientID)
	if p.RateLimiter != nil && !p.RateLimiter.Allow(clientID) {
		p.Auditor.LogRateLimitExceeded(clientID)
		return nil, ErrRateLimitExceeded("too many requests").WithState(state)
	}

	client, err := p.AuthenticateClient(ctx, clientID, req.param(ParamClientSecret))
	if err != nil {
		return nil, withFlowState(err, state)
	}

	scopes, duration, err := parseGrantOptions(req)
	if err != nil {
		return nil, withFlowState(err, state)
	}

	return &Flow{
		provider:  p,
		client:    client,
		grantType: grantType,
		scopes:    scopes,
		duration:  duration,
		state:     state,

		code:         req.param(ParamCode),
		redirectURI:  req.param(ParamRedirectURI),
		username:     req.param(ParamUsername),
		password:     req.param(ParamPassword),
		refreshToken: req.param(ParamRefreshToken),
		assertion: handlers.Assertion{
			Type:  req.param(ParamAssertionType),
			Value: req.param(ParamAssertion),
		},
	}, nil
}

func (p *Provider) dispatchAuthorization(ctx context.Context, req *Request, state string) (*Flow, error) {
	responseType := req.param(ParamResponseType)
	if responseType == "" {
		return nil, ErrInvalidRequest("missing required parameter response_type").WithState(state)
	}
	switch responseType {
	case ResponseTypeCode, ResponseTypeToken, ResponseTypeCodeAndToken:
	default:
		return nil, ErrUnsupportedResponseType(fmt.Sprintf("the response type %s is not supported", responseType)).WithState(state)
	}

	if err := requireParams(req, []string{ParamClientID}); err != nil {
		return nil, err.WithState(state)
	}

	client, err := p.LookupClient(ctx, req.param(ParamClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil {
		return nil, ErrInvalidClient("unknown client ID").WithState(state)
	}

	if uri := req.param(ParamRedirectURI); uri != "" && uri != client.RedirectURI {
		return nil, ErrRedirectURIMismatch("redirect_uri does not match the registered value").WithState(state)
	}

	scopes, duration, err := parseGrantOptions(req)
	if err != nil {
		return nil, withFlowState(err, state)
	}

	return &Flow{
		provider:     p,
		client:       client,
		responseType: responseType,
		scopes:       scopes,
		duration:     duration,
		state:        state,
		redirectURI:  req.param(ParamRedirectURI),
	}, nil
}

// requireParams checks presence of the named parameters, reporting every
// missing one in a single error.
func requireParams(req *Request, names []string) *Error {
	var missing []string
	for _, name := range names {
		if req.param(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return ErrInvalidRequest("missing required parameter(s) " + strings.Join(missing, ", "))
}

// parseGrantOptions reads the scope and duration parameters. Duration is
// an integer number of seconds bounding the grant's lifetime.
func parseGrantOptions(req *Request) ([]string, time.Duration, error) {
	scopes := NormalizeScopes(ParseScope(req.param(ParamScope)))

	raw := req.param(ParamDuration)
	if raw == "" {
		return scopes, 0, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds <= 0 {
		return nil, 0, ErrInvalidRequest("duration must be a positive integer number of seconds")
	}
	return scopes, time.Duration(seconds) * time.Second, nil
}

// withFlowState attaches the echoed state to protocol errors and passes
// everything else through unchanged.
func withFlowState(err error, state string) error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.WithState(state)
	}
	return err
}

// Exchange completes a token endpoint flow, issuing tokens for the
// request's grant type or failing with a protocol error carrying the
// echoed state.
func (f *Flow) Exchange(ctx context.Context) (*TokenResponse, error) {
	if f.grantType == "" {
		return nil, fmt.Errorf("not a token endpoint flow")
	}

	p := f.provider
	var resp *TokenResponse
	var err error

	switch f.grantType {
	case GrantTypeAuthorizationCode:
		resp, err = p.ExchangeAuthorizationCode(ctx, f.client, f.code, f.redirectURI)
	case GrantTypeClientCredentials:
		resp, err = p.ExchangeClientCredentials(ctx, f.client, f.scopes)
	case GrantTypePassword:
		resp, err = p.ExchangePassword(ctx, f.client, f.username, f.password, f.scopes)
	case GrantTypeAssertion:
		resp, err = p.ExchangeAssertion(ctx, f.client, f.assertion, f.scopes)
	case GrantTypeRefreshToken:
		resp, err = p.ExchangeRefreshToken(ctx, f.client, f.refreshToken)
	default:
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("the grant type %s is not supported", f.grantType)).WithState(f.state)
	}
	if err != nil {
		var oauthErr *Error
		if errors.As(err, &oauthErr) {
			if m := p.metrics(); m != nil {
				m.RecordExchangeFailure(ctx, f.grantType, oauthErr.Code)
			}
			return nil, oauthErr.WithState(f.state)
		}
		return nil, err
	}

	resp.State = f.state
	return resp, nil
}

// GrantAccess records the resource owner's approval of an authorization
// endpoint flow and builds the redirect payload for the request's
// response type: a one-time code, an access token, or both. The same
// owner instance is attached to the resulting grant.
func (f *Flow) GrantAccess(ctx context.Context, owner storage.ResourceOwner) (*AuthorizationResponse, error) {
	if f.responseType == "" {
		return nil, fmt.Errorf("not an authorization endpoint flow")
	}

	p := f.provider
	auth, err := p.Grant(ctx, owner, f.client, GrantOptions{Scopes: f.scopes, Duration: f.duration})
	if err != nil {
		return nil, withFlowState(err, f.state)
	}

	resp := &AuthorizationResponse{
		Scope: FormatScope(auth.Scopes),
		State: f.state,
	}

	if f.responseType == ResponseTypeCode || f.responseType == ResponseTypeCodeAndToken {
		code, err := p.generateCode(ctx, auth)
		if err != nil {
			return nil, err
		}
		auth.Code = code
		resp.Code = code
	}

	if f.responseType == ResponseTypeToken || f.responseType == ResponseTypeCodeAndToken {
		// issueTokens persists the pending code alongside the token hashes
		tokens, err := p.issueTokens(ctx, auth, f.client, "implicit", false)
		if err != nil {
			return nil, err
		}
		resp.AccessToken = tokens.AccessToken
		resp.ExpiresIn = tokens.ExpiresIn
		return resp, nil
	}

	if err := p.saveCode(ctx, auth); err != nil {
		return nil, err
	}
	return resp, nil
}

// DenyAccess records the resource owner's refusal of an authorization
// endpoint flow. The returned error carries the echoed state for the
// redirect back to the client.
func (f *Flow) DenyAccess() *Error {
	return ErrAccessDenied("the user denied you access").WithState(f.state)
}

// generateCode picks a code value no live authorization of this client
// already holds.
func (p *Provider) generateCode(ctx context.Context, auth *storage.Authorization) (string, error) {
	code, err := ident.GenerateUnique(func(candidate string) bool {
		_, lookupErr := p.store.GetAuthorizationByCode(ctx, auth.ClientID, candidate)
		return errors.Is(lookupErr, storage.ErrAuthorizationNotFound)
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return code, nil
}

// saveCode persists an authorization carrying a freshly generated code,
// regenerating the code when the save loses a uniqueness race.
func (p *Provider) saveCode(ctx context.Context, auth *storage.Authorization) error {
	for attempt := 0; attempt < ident.MaxAttempts; attempt++ {
		auth.UpdatedAt = time.Now()
		err := p.store.SaveAuthorization(ctx, auth)
		if err == nil {
			return nil
		}
		if !storage.IsConflict(err) {
			return fmt.Errorf("failed to save authorization: %w", err)
		}
		if m := p.metrics(); m != nil {
			m.RecordIdentifierRetry(ctx, "code")
		}
		code, genErr := p.generateCode(ctx, auth)
		if genErr != nil {
			return genErr
		}
		auth.Code = code
	}
	return fmt.Errorf("failed to save authorization code: %w", ident.ErrGenerateExhausted)
}

// AccessTokenFromRequest extracts the bearer token presented on a
// protected-resource request — from the Authorization header or the
// access_token/oauth_token parameters — and resolves it to its
// authorization. Presenting more than one distinct token value is an
// invalid_request; presenting none is an invalid_token. When
// requiredScopes are given, the grant must hold every one of them.
func (p *Provider) AccessTokenFromRequest(ctx context.Context, req *Request, requiredScopes ...string) (*storage.Authorization, error) {
	var tokens []string
	for _, candidate := range []string{
		bearerToken(req.AuthorizationHeader),
		req.param(ParamAccessToken),
		req.param(ParamOAuthToken),
	} {
		if candidate == "" {
			continue
		}
		duplicate := false
		for _, seen := range tokens {
			if seen == candidate {
				duplicate = true
				break
			}
		}
		if !duplicate {
			tokens = append(tokens, candidate)
		}
	}

	if len(tokens) > 1 {
		return nil, ErrInvalidRequest("request contains multiple access tokens")
	}
	if len(tokens) == 0 {
		return nil, ErrInvalidToken("no access token provided")
	}
	token := tokens[0]

	if p.Config.EnforceSSL && !req.TLS {
		// A bearer token sent in the clear is burned: invalidate it so it
		// cannot be replayed by whoever observed it.
		p.revokeLeakedToken(ctx, token)
		return nil, ErrInvalidRequest("access token was sent over an insecure connection")
	}

	auth, err := p.ValidateAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if missing := missingScopes(auth.Scopes, NormalizeScopes(requiredScopes)); len(missing) > 0 {
		return nil, ErrInsufficientScope("the access token does not grant the scope(s) " + strings.Join(missing, ", "))
	}
	return auth, nil
}

// revokeLeakedToken best-effort clears a token presented over an
// insecure transport.
func (p *Provider) revokeLeakedToken(ctx context.Context, token string) {
	auth, err := p.store.GetAuthorizationByAccessTokenHash(ctx, ident.Hash(token))
	if err != nil {
		return
	}
	auth.AccessTokenHash = ""
	auth.UpdatedAt = time.Now()
	if saveErr := p.store.SaveAuthorization(ctx, auth); saveErr != nil {
		p.Logger.Warn("failed to invalidate leaked access token", "error", saveErr)
		return
	}
	p.Auditor.LogAuthFailure(auth.OwnerID, "", "token_sent_insecurely")
	p.Logger.Warn("invalidated access token presented over insecure transport")
}

// bearerToken extracts the token value from an Authorization header.
// Both the RFC 6750 Bearer scheme and the legacy OAuth scheme are
// accepted.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	scheme, value, found := strings.Cut(header, " ")
	if !found {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer", "oauth":
		return strings.TrimSpace(value)
	}
	return ""
}
