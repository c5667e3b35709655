package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/drewfead/calbot/internal/metrics"
	"golang.org/x/oauth2"
)

// ErrAuthorizationRequired is returned when no usable token exists and the
// provider has no way to run the interactive flow (or already ran it).
var ErrAuthorizationRequired = errors.New("authorization required")

// OAuthProvider serves user credentials from a token cache.
//
// A cached token that is still valid is used as-is. An expired token with a
// refresh token is refreshed once and persisted before use. Otherwise the
// Authorizer runs, at most once per provider, and its token is persisted.
// All of this happens under one lock so concurrent callers never race on the
// token cache.
type OAuthProvider struct {
	config     *oauth2.Config
	store      TokenStore
	authorizer Authorizer

	mu         sync.Mutex
	token      *oauth2.Token
	authorized bool
}

// NewOAuthProvider builds a provider. authorizer may be nil, in which case a
// missing token is an error instead of a prompt.
func NewOAuthProvider(config *oauth2.Config, store TokenStore, authorizer Authorizer) *OAuthProvider {
	return &OAuthProvider{
		config:     config,
		store:      store,
		authorizer: authorizer,
	}
}

// Client returns an HTTP client whose transport persists any token it
// refreshes later on.
func (p *OAuthProvider) Client(ctx context.Context) (*http.Client, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}

	ts := &persistingTokenSource{
		ctx:      ctx,
		provider: p,
		base:     p.config.TokenSource(ctx, tok),
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Token returns a valid token, following the cache → refresh → authorize
// policy.
func (p *OAuthProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok := p.token
	if tok == nil {
		cached, err := p.store.Load(ctx)
		switch {
		case err == nil:
			tok = cached
		case errors.Is(err, ErrNoToken):
		default:
			slog.Warn("ignoring unreadable token cache", "store", p.store, "error", err)
		}
	}

	if tok != nil && tok.Valid() {
		p.token = tok
		return tok, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := p.refresh(ctx, tok)
		if err == nil {
			return refreshed, nil
		}
		var rerr *oauth2.RetrieveError
		if !errors.As(err, &rerr) || rerr.ErrorCode != "invalid_grant" {
			return nil, err
		}
		if p.authorizer == nil {
			slog.Error("refresh token expired or revoked, run `calbot auth` to sign in again", "store", p.store, "error", err)
			return nil, fmt.Errorf("%w: refresh token rejected, run `calbot auth` to sign in again", ErrAuthorizationRequired)
		}
		slog.Warn("refresh token expired or revoked, re-authorizing", "error", err)
	}

	return p.authorize(ctx)
}

// DisableInteractive drops the Authorizer. From then on a missing or revoked
// token fails with ErrAuthorizationRequired instead of prompting.
func (p *OAuthProvider) DisableInteractive() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.authorizer = nil
}

// Reauthorize discards any cached token and runs the interactive flow.
func (p *OAuthProvider) Reauthorize(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = nil
	p.authorized = false
	return p.authorize(ctx)
}

// refresh exchanges the refresh token exactly once and persists the result
// before handing it out. Callers hold p.mu.
func (p *OAuthProvider) refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	metrics.TokenOperations.WithLabelValues("refresh").Inc()

	// Force the refresh: a copy with no access token is never Valid.
	stale := *tok
	stale.AccessToken = ""
	refreshed, err := p.config.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("unable to refresh token: %w", err)
	}
	if err := p.store.Save(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("unable to save refreshed token: %w", err)
	}

	slog.Debug("token refreshed", "store", p.store, "expiry", refreshed.Expiry)
	p.token = refreshed
	return refreshed, nil
}

// authorize runs the interactive flow. Callers hold p.mu.
func (p *OAuthProvider) authorize(ctx context.Context) (*oauth2.Token, error) {
	if p.authorizer == nil {
		return nil, fmt.Errorf("%w: no usable token and interactive sign-in is off, run `calbot auth` first", ErrAuthorizationRequired)
	}
	if p.authorized {
		return nil, fmt.Errorf("%w: interactive authorization already ran in this process", ErrAuthorizationRequired)
	}
	p.authorized = true

	metrics.TokenOperations.WithLabelValues("authorize").Inc()
	tok, err := p.authorizer.Authorize(ctx, p.config)
	if err != nil {
		return nil, fmt.Errorf("unable to get token from web: %w", err)
	}
	if err := p.store.Save(ctx, tok); err != nil {
		return nil, fmt.Errorf("unable to save token: %w", err)
	}

	slog.Info("authorization complete, token stored", "store", p.store)
	p.token = tok
	return tok, nil
}

// remember persists tokens the transport refreshed on its own.
func (p *OAuthProvider) remember(ctx context.Context, tok *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil && p.token.AccessToken == tok.AccessToken {
		return
	}
	p.token = tok
	if err := p.store.Save(ctx, tok); err != nil {
		slog.Warn("unable to persist refreshed token", "store", p.store, "error", err)
	}
}

type persistingTokenSource struct {
	ctx      context.Context
	provider *OAuthProvider
	base     oauth2.TokenSource
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.provider.remember(s.ctx, tok)
	return tok, nil
}
