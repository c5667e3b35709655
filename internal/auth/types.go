package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredentials is returned when the configured credential source
// (client secret, service account key) does not exist or is empty. It is
// raised before any network call is attempted.
var ErrMissingCredentials = errors.New("missing credentials")

// Provider produces an authenticated HTTP client for the Google Calendar API.
type Provider interface {
	Client(ctx context.Context) (*http.Client, error)
}

// CredentialType represents the type of authentication credentials
type CredentialType int

const (
	CredentialTypeUnknown CredentialType = iota
	CredentialTypeOAuthClient
	CredentialTypeServiceAccount
)

// DetectCredentialType examines the JSON structure to determine credential type
func DetectCredentialType(data []byte) (CredentialType, error) {
	var check map[string]json.RawMessage
	if err := json.Unmarshal(data, &check); err != nil {
		return CredentialTypeUnknown, fmt.Errorf("failed to parse credentials: %w", err)
	}

	var typ string
	if raw, ok := check["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	if typ == "service_account" {
		return CredentialTypeServiceAccount, nil
	}

	// OAuth clients are wrapped in "installed" (desktop) or "web"
	if _, ok := check["installed"]; ok {
		return CredentialTypeOAuthClient, nil
	}
	if _, ok := check["web"]; ok {
		return CredentialTypeOAuthClient, nil
	}

	return CredentialTypeUnknown, fmt.Errorf("unknown credential type")
}

func (t CredentialType) String() string {
	switch t {
	case CredentialTypeOAuthClient:
		return "OAuth Client"
	case CredentialTypeServiceAccount:
		return "Service Account"
	default:
		return "Unknown"
	}
}
