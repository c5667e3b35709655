package auth

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// LoadConfig loads an OAuth client secret file and returns a config scoped to
// calendar read/write.
func LoadConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := readCredentials(credentialsPath, "client secret")
	if err != nil {
		return nil, err
	}
	return ConfigFromJSON(b)
}

// ConfigFromJSON parses an OAuth client config ("installed" or "web").
func ConfigFromJSON(data []byte) (*oauth2.Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty OAuth client config", ErrMissingCredentials)
	}

	credType, err := DetectCredentialType(data)
	if err != nil {
		return nil, err
	}
	if credType != CredentialTypeOAuthClient {
		return nil, fmt.Errorf("expected OAuth client credentials, got %s", credType)
	}

	config, err := google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret to config: %w", err)
	}

	return config, nil
}

func readCredentials(path, what string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no %s path configured", ErrMissingCredentials, what)
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s file %q not found", ErrMissingCredentials, what, path)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s file: %w", what, err)
	}
	return b, nil
}
