package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/drewfead/calbot/internal/metrics"
	"github.com/drewfead/calbot/pkg/googlecaltest"
)

type memStore struct {
	mu      sync.Mutex
	tok     *oauth2.Token
	saves   int
	loadErr error
}

func (m *memStore) Load(context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.tok == nil {
		return nil, ErrNoToken
	}
	tok := *m.tok
	return &tok, nil
}

func (m *memStore) Save(_ context.Context, tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *tok
	m.tok = &saved
	m.saves++
	return nil
}

func (m *memStore) saved() (*oauth2.Token, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tok, m.saves
}

// codeAuthorizer exchanges a fixed code, standing in for a user at a browser.
type codeAuthorizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *codeAuthorizer) Authorize(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return config.Exchange(ctx, "test-code")
}

func validToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "cached-access",
		RefreshToken: "cached-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func expiredToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "stale-access",
		RefreshToken: "cached-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}
}

func newTestProvider(t *testing.T, store *memStore, authorizer Authorizer) (*OAuthProvider, *googlecaltest.TokenServer) {
	t.Helper()
	ts := googlecaltest.NewTokenServer()
	t.Cleanup(ts.Close)
	return NewOAuthProvider(ts.Config(), store, authorizer), ts
}

func TestOAuthProvider_CachedTokenUsedAsIs(t *testing.T) {
	store := &memStore{tok: validToken()}
	authz := &codeAuthorizer{}
	p, ts := newTestProvider(t, store, authz)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cached-access", tok.AccessToken)
	assert.Zero(t, ts.Refreshes())
	assert.Zero(t, ts.Exchanges())
	assert.Zero(t, authz.calls)
	_, saves := store.saved()
	assert.Zero(t, saves)
}

func TestOAuthProvider_ExpiredTokenRefreshedOnce(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	authz := &codeAuthorizer{}
	p, ts := newTestProvider(t, store, authz)
	before := testutil.ToFloat64(metrics.TokenOperations.WithLabelValues("refresh"))

	ctx := context.Background()
	_, err := p.Client(ctx)
	require.NoError(t, err)
	_, err = p.Client(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, ts.Refreshes())
	assert.Zero(t, authz.calls)

	saved, saves := store.saved()
	assert.Equal(t, 1, saves)
	assert.Equal(t, "access-1", saved.AccessToken)
	assert.Equal(t, "cached-refresh", saved.RefreshToken, "refresh token is kept when the server omits it")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TokenOperations.WithLabelValues("refresh")))
}

func TestOAuthProvider_ConcurrentRefresh(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	p, ts := newTestProvider(t, store, nil)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ts.Refreshes())
}

func TestOAuthProvider_NoTokenAuthorizesOncePerProcess(t *testing.T) {
	store := &memStore{}
	authz := &codeAuthorizer{}
	p, ts := newTestProvider(t, store, authz)

	ctx := context.Background()
	_, err := p.Client(ctx)
	require.NoError(t, err)
	_, err = p.Client(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, authz.calls)
	assert.Equal(t, 1, ts.Exchanges())

	saved, _ := store.saved()
	require.NotNil(t, saved)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
}

func TestOAuthProvider_FailedAuthorizationNotRepeated(t *testing.T) {
	authz := &codeAuthorizer{err: errors.New("user closed the browser")}
	p, _ := newTestProvider(t, &memStore{}, authz)

	_, err := p.Token(context.Background())
	require.Error(t, err)

	_, err = p.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
	assert.Equal(t, 1, authz.calls)
}

func TestOAuthProvider_NoAuthorizer(t *testing.T) {
	p, _ := newTestProvider(t, &memStore{}, nil)

	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
}

func TestOAuthProvider_RevokedRefreshFallsBackToAuthorize(t *testing.T) {
	store := &memStore{tok: expiredToken()}
	authz := &codeAuthorizer{}
	p, ts := newTestProvider(t, store, authz)
	ts.RejectWith("invalid_grant")

	_, err := p.Token(context.Background())

	// the exchange is rejected too, but the interactive path was taken
	require.Error(t, err)
	assert.Equal(t, 1, ts.Refreshes())
	assert.Equal(t, 1, authz.calls)
}

func TestOAuthProvider_DisableInteractive_RevokedFailsFast(t *testing.T) {
	store := &memStore{tok: validToken()}
	p, ts := newTestProvider(t, store, &LocalServerAuthorizer{OpenBrowser: false})

	_, err := p.Token(context.Background())
	require.NoError(t, err)
	p.DisableInteractive()

	// later the token lapses and the refresh token is revoked
	p.mu.Lock()
	p.token.Expiry = time.Now().Add(-time.Minute)
	p.mu.Unlock()
	ts.RejectWith("invalid_grant")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started := time.Now()
	_, err = p.Client(ctx)
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
	assert.ErrorContains(t, err, "calbot auth")
	assert.NoError(t, ctx.Err(), "returned only after the deadline")
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, ts.Refreshes())
	assert.Zero(t, ts.Exchanges())
}

func TestOAuthProvider_DisableInteractive_SkipsAuthorizer(t *testing.T) {
	authz := &codeAuthorizer{}
	p, ts := newTestProvider(t, &memStore{tok: expiredToken()}, authz)
	ts.RejectWith("invalid_grant")
	p.DisableInteractive()

	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthorizationRequired)
	assert.Zero(t, authz.calls)
}

func TestOAuthProvider_UnreadableCacheIgnored(t *testing.T) {
	store := &memStore{loadErr: errors.New("corrupt")}
	authz := &codeAuthorizer{}
	p, _ := newTestProvider(t, store, authz)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, 1, authz.calls)
}

func TestOAuthProvider_Reauthorize(t *testing.T) {
	store := &memStore{tok: validToken()}
	authz := &codeAuthorizer{}
	p, ts := newTestProvider(t, store, authz)

	_, err := p.Token(context.Background())
	require.NoError(t, err)

	tok, err := p.Reauthorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, 1, authz.calls)
	assert.Equal(t, 1, ts.Exchanges())

	saved, _ := store.saved()
	assert.Equal(t, "access-1", saved.AccessToken)
}

func TestPersistingTokenSource_SavesNewTokens(t *testing.T) {
	store := &memStore{}
	p, _ := newTestProvider(t, store, nil)

	ts := &persistingTokenSource{
		ctx:      context.Background(),
		provider: p,
		base:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "transport-refreshed"}),
	}

	_, err := ts.Token()
	require.NoError(t, err)
	_, err = ts.Token()
	require.NoError(t, err)

	saved, saves := store.saved()
	assert.Equal(t, "transport-refreshed", saved.AccessToken)
	assert.Equal(t, 1, saves, "unchanged tokens are not rewritten")
}
