package googlecaltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"golang.org/x/oauth2"
)

// TokenServer is a mock OAuth 2.0 token endpoint. It answers both the
// authorization_code and refresh_token grants and counts each.
type TokenServer struct {
	*httptest.Server
	mu        sync.Mutex
	refreshes int
	exchanges int
	issued    int
	rejectAll string
}

func NewTokenServer() *TokenServer {
	ts := &TokenServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", ts.handleToken)
	ts.Server = httptest.NewServer(mux)
	return ts
}

// Endpoint returns an oauth2.Endpoint pointing at the mock.
func (ts *TokenServer) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   ts.URL + "/auth",
		TokenURL:  ts.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// Config returns a client config wired to the mock endpoint.
func (ts *TokenServer) Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test-client-id.apps.googleusercontent.com",
		ClientSecret: "test-secret",
		Endpoint:     ts.Endpoint(),
		RedirectURL:  "http://localhost",
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	}
}

// RejectWith makes every grant fail with the given OAuth error code
// (e.g. "invalid_grant"). An empty code restores normal behaviour.
func (ts *TokenServer) RejectWith(code string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.rejectAll = code
}

func (ts *TokenServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	grant := r.PostForm.Get("grant_type")
	switch grant {
	case "refresh_token":
		ts.refreshes++
	case "authorization_code":
		ts.exchanges++
	default:
		writeOAuthError(w, "unsupported_grant_type")
		return
	}

	if ts.rejectAll != "" {
		writeOAuthError(w, ts.rejectAll)
		return
	}

	ts.issued++
	resp := map[string]interface{}{
		"access_token": fmt.Sprintf("access-%d", ts.issued),
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if grant == "authorization_code" {
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", ts.issued)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": "rejected by mock token server",
	})
}

// Refreshes returns how many refresh_token grants were requested.
func (ts *TokenServer) Refreshes() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshes
}

// Exchanges returns how many authorization codes were exchanged.
func (ts *TokenServer) Exchanges() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.exchanges
}
