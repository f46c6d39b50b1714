package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-authcore/instrumentation"
	"github.com/giantswarm/mcp-authcore/permissions"
	"github.com/giantswarm/mcp-authcore/security"
	"github.com/giantswarm/mcp-authcore/storage"
)

// Token type hints for revocation (RFC 7009 section 2.1).
const (
	TokenTypeHintAccessToken  = "access_token"  //nolint:gosec // G101: hint name, not a credential
	TokenTypeHintRefreshToken = "refresh_token" //nolint:gosec // G101: hint name, not a credential
)

// AuthorizeRequest carries the parameters of an authorization request.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	IPAddress           string
}

// AuthorizeResponse carries the issued authorization code and the client's
// state, echoed back unchanged for CSRF validation on the client side.
type AuthorizeResponse struct {
	Code  string
	State string
}

// ExchangeRequest carries the parameters of an authorization code exchange.
type ExchangeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
	IPAddress    string
}

// RefreshRequest carries the parameters of a refresh token exchange.
type RefreshRequest struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	IPAddress    string
}

// RevokeRequest carries the parameters of a revocation request (RFC 7009).
type RevokeRequest struct {
	Token         string
	TokenTypeHint string // "access_token", "refresh_token", or empty
	ClientID      string
	IPAddress     string
}

// TokenResponse represents an OAuth 2.0 token response
type TokenResponse struct {
	// AccessToken is the access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken is the refresh token (optional)
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-separated scope of the access token
	Scope string `json:"scope,omitempty"`
}

// ============================================================
// Authorization
// ============================================================

// Authorize validates an authorization request and issues a single-use
// authorization code bound to the client, redirect URI, scopes, and PKCE
// challenge. Every denial is audited with the reason; the code value itself
// never appears in any log.
func (s *Server) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error) {
	ctx, span := s.startFlowSpan(ctx, "authorize")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordFlowOperation(ctx, span, "authorize", err, startTime)
	}()

	evCtx := security.Context{ClientID: req.ClientID, IPAddress: req.IPAddress}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrScope, strings.Join(req.Scopes, " ")))

	if !s.allowRate(req.ClientID) {
		s.audit(ctx, security.EventAuthorizationDenied, security.ResultWarning, evCtx,
			map[string]any{"reason": "rate_limited"})
		err = ErrRateLimitExceeded("too many authorization requests")
		return nil, err
	}

	client, getErr := s.store.GetClient(ctx, req.ClientID)
	if getErr != nil {
		s.audit(ctx, security.EventAuthorizationDenied, security.ResultFailure, evCtx,
			map[string]any{"reason": "unknown_client"})
		err = ErrInvalidClient("unknown client")
		return nil, err
	}

	if vErr := validateRedirectURI(client, req.RedirectURI); vErr != nil {
		s.audit(ctx, security.EventAuthorizationDenied, security.ResultFailure, evCtx,
			map[string]any{"reason": "invalid_redirect_uri", "redirect_uri": req.RedirectURI})
		err = ErrInvalidRedirectURI(vErr.Error())
		return nil, err
	}

	if vErr := validateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); vErr != nil {
		s.audit(ctx, security.EventAuthorizationDenied, security.ResultFailure, evCtx,
			map[string]any{"reason": "invalid_pkce_parameters"})
		err = ErrInvalidRequest(vErr.Error())
		return nil, err
	}

	if vErr := s.validateScopes(client, req.Scopes); vErr != nil {
		s.audit(ctx, security.EventAuthorizationDenied, security.ResultFailure, evCtx,
			map[string]any{"reason": "invalid_scope", "scope": strings.Join(req.Scopes, " ")})
		err = ErrInvalidScope(vErr.Error())
		return nil, err
	}

	s.audit(ctx, security.EventAuthorizationRequested, security.ResultSuccess, evCtx,
		map[string]any{"scope": strings.Join(req.Scopes, " ")})

	code := &storage.AuthorizationCode{
		Code:          generateRandomToken(),
		ClientID:      client.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		Scopes:        req.Scopes,
		CreatedAt:     time.Now(),
	}
	if saveErr := s.store.SaveAuthorizationCode(ctx, code, s.Config.codeTTL()); saveErr != nil {
		err = ErrServerError("failed to persist authorization code")
		s.Logger.Error("Failed to save authorization code", "client_id", client.ClientID, "error", saveErr)
		return nil, err
	}

	s.audit(ctx, security.EventAuthorizationGranted, security.ResultSuccess, evCtx,
		map[string]any{"code": code.Code, "scope": strings.Join(req.Scopes, " ")})

	return &AuthorizeResponse{Code: code.Code, State: req.State}, nil
}

// ============================================================
// Code exchange
// ============================================================

// ExchangeAuthorizationCode consumes an authorization code and issues an
// access token and refresh token. The code is consumed atomically FIRST, so
// of any number of concurrent exchanges for the same code exactly one can
// proceed; all failures after consumption burn the code.
//
// Failure responses deliberately do not distinguish unknown, expired, used,
// or mismatched codes.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *ExchangeRequest) (*TokenResponse, error) {
	ctx, span := s.startFlowSpan(ctx, "exchange_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordFlowOperation(ctx, span, "exchange_code", err, startTime)
	}()

	evCtx := security.Context{ClientID: req.ClientID, IPAddress: req.IPAddress}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrGrantType, "authorization_code"))

	if !s.allowRate(req.ClientID) {
		s.audit(ctx, security.EventTokenIssued, security.ResultWarning, evCtx,
			map[string]any{"reason": "rate_limited"})
		err = ErrRateLimitExceeded("too many token requests")
		return nil, err
	}

	if authErr := s.store.ValidateClientSecret(ctx, req.ClientID, req.ClientSecret); authErr != nil {
		s.audit(ctx, security.EventTokenIssued, security.ResultFailure, evCtx,
			map[string]any{"reason": "client_authentication_failed"})
		err = ErrInvalidClient("client authentication failed")
		return nil, err
	}

	code, markErr := s.store.MarkAuthorizationCodeUsed(ctx, req.Code)
	if markErr != nil {
		if errors.Is(markErr, storage.ErrAuthorizationCodeUsed) {
			// Reuse of a consumed code is the signature of a stolen code.
			instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrCodeReuse, true))
			if s.inst != nil {
				s.inst.Metrics().RecordCodeReuse(ctx)
			}
			owner := ""
			if code != nil {
				owner = code.ClientID
			}
			s.audit(ctx, security.EventTokenIssued, security.ResultWarning, evCtx,
				map[string]any{"reason": "authorization_code_reuse", "code": req.Code, "code_owner": owner})
		} else {
			s.audit(ctx, security.EventTokenIssued, security.ResultFailure, evCtx,
				map[string]any{"reason": "invalid_authorization_code", "code": req.Code})
		}
		err = ErrInvalidGrant("invalid authorization code")
		return nil, err
	}

	// The code is consumed now. Every failure below burns it.

	if code.ClientID != req.ClientID {
		s.audit(ctx, security.EventTokenIssued, security.ResultFailure, evCtx,
			map[string]any{"reason": "client_mismatch", "code": req.Code})
		err = ErrInvalidGrant("invalid authorization code")
		return nil, err
	}

	// redirect_uri is optional at exchange time; when supplied it must equal
	// the one the code was issued against.
	if req.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		s.audit(ctx, security.EventTokenIssued, security.ResultFailure, evCtx,
			map[string]any{"reason": "redirect_uri_mismatch"})
		err = ErrInvalidGrant("invalid authorization code")
		return nil, err
	}

	if pkceErr := verifyPKCE(req.CodeVerifier, code.CodeChallenge); pkceErr != nil {
		if s.inst != nil {
			s.inst.Metrics().RecordPKCEFailure(ctx)
		}
		s.audit(ctx, security.EventTokenIssued, security.ResultFailure, evCtx,
			map[string]any{"reason": "pkce_verification_failed"})
		err = ErrInvalidGrant("PKCE verification failed")
		return nil, err
	}

	resp, issueErr := s.issueTokens(ctx, code.ClientID, code.Scopes)
	if issueErr != nil {
		s.audit(ctx, security.EventTokenIssued, security.ResultFailure, evCtx,
			map[string]any{"reason": "storage_failure"})
		err = ErrServerError("failed to issue tokens")
		s.Logger.Error("Failed to issue tokens", "client_id", code.ClientID, "error", issueErr)
		return nil, err
	}

	s.audit(ctx, security.EventTokenIssued, security.ResultSuccess, evCtx,
		map[string]any{"scope": resp.Scope, "grant_type": "authorization_code"})

	return resp, nil
}

// issueTokens creates an access token and refresh token pair and commits
// both in one transaction, so a half-issued pair is never visible.
func (s *Server) issueTokens(ctx context.Context, clientID string, scopes []string) (*TokenResponse, error) {
	access := &storage.AccessToken{
		Token:     generateRandomToken(),
		ClientID:  clientID,
		Scopes:    scopes,
		CreatedAt: time.Now(),
	}
	refresh := &storage.RefreshToken{
		Token:       generateRandomToken(),
		AccessToken: access.Token,
		ClientID:    clientID,
		Scopes:      scopes,
		CreatedAt:   time.Now(),
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.SaveToken(access, s.Config.accessTTL()); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.SaveRefreshToken(refresh, s.Config.refreshTTL()); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: refresh.Token,
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// ============================================================
// Refresh
// ============================================================

// ExchangeRefreshToken exchanges a refresh token for a fresh token pair.
// With rotation enabled (the default) the presented refresh token is
// consumed atomically, so a replayed or raced refresh fails with
// invalid_grant. Scopes carry over from the original grant unchanged.
func (s *Server) ExchangeRefreshToken(ctx context.Context, req *RefreshRequest) (*TokenResponse, error) {
	ctx, span := s.startFlowSpan(ctx, "refresh")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordFlowOperation(ctx, span, "refresh", err, startTime)
	}()

	evCtx := security.Context{ClientID: req.ClientID, IPAddress: req.IPAddress}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrGrantType, "refresh_token"),
		attribute.Bool(instrumentation.AttrTokenRotated, s.Config.AllowRefreshTokenRotation))

	if !s.allowRate(req.ClientID) {
		s.audit(ctx, security.EventTokenRefreshed, security.ResultWarning, evCtx,
			map[string]any{"reason": "rate_limited"})
		err = ErrRateLimitExceeded("too many token requests")
		return nil, err
	}

	if authErr := s.store.ValidateClientSecret(ctx, req.ClientID, req.ClientSecret); authErr != nil {
		s.audit(ctx, security.EventTokenRefreshed, security.ResultFailure, evCtx,
			map[string]any{"reason": "client_authentication_failed"})
		err = ErrInvalidClient("client authentication failed")
		return nil, err
	}

	var stored *storage.RefreshToken
	var lookupErr error
	if s.Config.AllowRefreshTokenRotation {
		stored, lookupErr = s.store.AtomicGetAndDeleteRefreshToken(ctx, req.RefreshToken)
	} else {
		stored, lookupErr = s.store.GetRefreshToken(ctx, req.RefreshToken)
	}
	if lookupErr != nil {
		s.audit(ctx, security.EventTokenRefreshed, security.ResultFailure, evCtx,
			map[string]any{"reason": "invalid_refresh_token", "refresh_token": req.RefreshToken})
		err = ErrInvalidGrant("invalid refresh token")
		return nil, err
	}

	if stored.ClientID != req.ClientID {
		s.audit(ctx, security.EventTokenRefreshed, security.ResultFailure, evCtx,
			map[string]any{"reason": "client_mismatch", "refresh_token": req.RefreshToken})
		err = ErrInvalidGrant("invalid refresh token")
		return nil, err
	}

	// The old access token may still have life in it; retire it so the
	// refresh actually supersedes the previous grant.
	if stored.AccessToken != "" {
		if delErr := s.store.DeleteToken(ctx, stored.AccessToken); delErr != nil {
			s.Logger.Warn("Failed to delete superseded access token", "error", delErr)
		}
	}

	var resp *TokenResponse
	var issueErr error
	if s.Config.AllowRefreshTokenRotation {
		resp, issueErr = s.issueTokens(ctx, stored.ClientID, stored.Scopes)
	} else {
		resp, issueErr = s.issueAccessTokenOnly(ctx, stored)
	}
	if issueErr != nil {
		s.audit(ctx, security.EventTokenRefreshed, security.ResultFailure, evCtx,
			map[string]any{"reason": "storage_failure"})
		err = ErrServerError("failed to issue tokens")
		s.Logger.Error("Failed to issue tokens on refresh", "client_id", stored.ClientID, "error", issueErr)
		return nil, err
	}

	s.audit(ctx, security.EventTokenRefreshed, security.ResultSuccess, evCtx,
		map[string]any{"scope": resp.Scope, "rotated": s.Config.AllowRefreshTokenRotation})

	return resp, nil
}

// issueAccessTokenOnly issues a new access token against a refresh token
// that stays valid (rotation disabled). The stored refresh token record is
// repointed at the new access token.
func (s *Server) issueAccessTokenOnly(ctx context.Context, stored *storage.RefreshToken) (*TokenResponse, error) {
	access := &storage.AccessToken{
		Token:     generateRandomToken(),
		ClientID:  stored.ClientID,
		Scopes:    stored.Scopes,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveToken(ctx, access, s.Config.accessTTL()); err != nil {
		return nil, err
	}

	// Repoint the refresh record, preserving its remaining lifetime.
	remaining := time.Until(stored.ExpiresAt)
	if remaining > 0 {
		updated := stored.Clone()
		updated.AccessToken = access.Token
		if err := s.store.DeleteRefreshToken(ctx, stored.Token); err == nil {
			if err := s.store.SaveRefreshToken(ctx, updated, remaining); err != nil {
				s.Logger.Warn("Failed to repoint refresh token", "error", err)
			}
		}
	}

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: stored.Token,
		Scope:        strings.Join(stored.Scopes, " "),
	}, nil
}

// ============================================================
// Verification
// ============================================================

// VerifyAccessToken resolves an access token into an authenticated security
// context carrying the permissions mapped from the token's scopes. Expired,
// revoked, and unknown tokens fail identically.
func (s *Server) VerifyAccessToken(ctx context.Context, token, ipAddress string) (*permissions.SecurityContext, error) {
	ctx, span := s.startFlowSpan(ctx, "verify")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordFlowOperation(ctx, span, "verify", err, startTime)
	}()

	stored, getErr := s.store.GetToken(ctx, token)
	if getErr != nil {
		s.audit(ctx, security.EventTokenValidationFailed, security.ResultFailure,
			security.Context{IPAddress: ipAddress},
			map[string]any{"reason": "token_not_found_or_expired", "token": token})
		err = ErrInvalidToken("invalid or expired access token")
		return nil, err
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, stored.ClientID))

	secCtx := permissions.NewSecurityContext(stored.ClientID, stored.Scopes)
	secCtx.IPAddress = ipAddress

	s.audit(ctx, security.EventTokenValidationSuccess, security.ResultSuccess,
		security.Context{ClientID: stored.ClientID, IPAddress: ipAddress},
		map[string]any{"permissions": secCtx.Permissions})

	return secCtx, nil
}

// ============================================================
// Revocation
// ============================================================

// RevokeToken invalidates a credential (RFC 7009). Revoking a refresh token
// also revokes the access token it is paired with. Revoking an unknown or
// already-revoked token succeeds silently; revocation never leaks whether a
// token existed. Only storage unavailability produces an error.
func (s *Server) RevokeToken(ctx context.Context, req *RevokeRequest) error {
	ctx, span := s.startFlowSpan(ctx, "revoke")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordFlowOperation(ctx, span, "revoke", err, startTime)
	}()

	evCtx := security.Context{ClientID: req.ClientID, IPAddress: req.IPAddress}

	switch req.TokenTypeHint {
	case TokenTypeHintRefreshToken:
		err = s.revokeRefreshToken(ctx, req.Token)
	case TokenTypeHintAccessToken:
		err = s.store.DeleteToken(ctx, req.Token)
	default:
		// No hint: try both families. The token value can only exist in one.
		if err = s.revokeRefreshToken(ctx, req.Token); err == nil {
			err = s.store.DeleteToken(ctx, req.Token)
		}
	}

	if err != nil {
		s.audit(ctx, security.EventTokenRevoked, security.ResultFailure, evCtx,
			map[string]any{"reason": "storage_failure", "token_type_hint": req.TokenTypeHint})
		return ErrServerError("revocation failed")
	}

	s.audit(ctx, security.EventTokenRevoked, security.ResultSuccess, evCtx,
		map[string]any{"token": req.Token, "token_type_hint": req.TokenTypeHint})
	return nil
}

// revokeRefreshToken deletes a refresh token and cascades to its paired
// access token. Unknown tokens are not an error.
func (s *Server) revokeRefreshToken(ctx context.Context, token string) error {
	stored, err := s.store.GetRefreshToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) || errors.Is(err, storage.ErrExpired) {
			return nil
		}
		return err
	}

	if err := s.store.DeleteRefreshToken(ctx, token); err != nil {
		return err
	}
	if stored.AccessToken != "" {
		if err := s.store.DeleteToken(ctx, stored.AccessToken); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// Client registration
// ============================================================

// RegisterClientRequest carries the parameters for registering a client.
type RegisterClientRequest struct {
	ClientName    string
	RedirectURIs  []string
	AllowedScopes []string

	// Confidential clients receive a generated secret; public clients
	// authenticate with PKCE alone.
	Confidential bool
}

// ClientRegistration is the result of a successful registration. The
// plaintext secret appears here once and is never recoverable afterwards;
// only its bcrypt hash is stored.
type ClientRegistration struct {
	ClientID     string
	ClientSecret string
	Client       *storage.Client
}

// RegisterClient registers a new client with its redirect URIs and scope
// allow-list.
func (s *Server) RegisterClient(ctx context.Context, req *RegisterClientRequest) (*ClientRegistration, error) {
	if len(req.RedirectURIs) == 0 {
		return nil, ErrInvalidRequest("at least one redirect_uri is required")
	}
	for _, uri := range req.RedirectURIs {
		if uri == "" {
			return nil, ErrInvalidRequest("redirect_uri cannot be empty")
		}
	}

	client := &storage.Client{
		ClientID:      generateRandomToken(),
		ClientName:    req.ClientName,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
		CreatedAt:     time.Now(),
	}

	secret := ""
	if req.Confidential {
		secret = generateRandomToken()
		hash, err := storage.HashClientSecret(secret)
		if err != nil {
			return nil, ErrServerError("failed to hash client secret")
		}
		client.ClientSecretHash = hash
	}

	if err := s.store.SaveClient(ctx, client); err != nil {
		s.Logger.Error("Failed to save client", "error", err)
		return nil, ErrServerError("failed to register client")
	}

	s.Logger.Info("Registered client",
		"client_id", security.RedactID(client.ClientID),
		"client_name", client.ClientName,
		"confidential", req.Confidential)

	return &ClientRegistration{
		ClientID:     client.ClientID,
		ClientSecret: secret,
		Client:       client,
	}, nil
}
