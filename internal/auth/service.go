package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/calendar/v3"
)

// ServiceAccountProvider authenticates with a service account key. Tokens are
// minted on demand from the key, so there is nothing to cache or refresh.
type ServiceAccountProvider struct {
	config *jwt.Config
}

// NewServiceAccountProvider parses a service account key. When subject is
// set the account impersonates that user (domain-wide delegation).
func NewServiceAccountProvider(data []byte, subject string) (*ServiceAccountProvider, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty service account key", ErrMissingCredentials)
	}

	credType, err := DetectCredentialType(data)
	if err != nil {
		return nil, err
	}
	if credType != CredentialTypeServiceAccount {
		return nil, fmt.Errorf("expected service account credentials, got %s", credType)
	}

	config, err := google.JWTConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}
	config.Subject = subject

	return &ServiceAccountProvider{config: config}, nil
}

// ServiceAccountFromFile reads a service account key from keyPath.
func ServiceAccountFromFile(keyPath, subject string) (*ServiceAccountProvider, error) {
	data, err := readCredentials(keyPath, "service account key")
	if err != nil {
		return nil, err
	}
	return NewServiceAccountProvider(data, subject)
}

// Email returns the service account address, which must be granted access
// to any calendar other than its own.
func (p *ServiceAccountProvider) Email() string {
	return p.config.Email
}

func (p *ServiceAccountProvider) Client(ctx context.Context) (*http.Client, error) {
	return p.config.Client(ctx), nil
}
