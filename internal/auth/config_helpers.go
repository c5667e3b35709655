package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/drewfead/calbot/internal/config"
	"golang.org/x/oauth2"
)

// ResolveMode returns the configured auth mode, or detects it from the
// credential sources that are set: a service account key wins, then an
// environment-provided client config, then the client secret file.
func ResolveMode(cfg config.AuthConfig) string {
	if cfg.Mode != "" {
		return cfg.Mode
	}
	switch {
	case cfg.ServiceAccountJSON != "" || cfg.ServiceAccountPath != "":
		return config.AuthModeServiceAccount
	case cfg.ClientConfigJSON != "":
		return config.AuthModeConsole
	default:
		return config.AuthModeUser
	}
}

// OpenTokenStore opens the configured token cache. The returned store may
// implement io.Closer.
func OpenTokenStore(ctx context.Context, cfg config.AuthConfig) (TokenStore, error) {
	switch cfg.TokenStore {
	case config.TokenStoreSQLite:
		return OpenSQLiteTokenStore(ctx, cfg.DatabasePath, cfg.Account)
	case config.TokenStoreFile, "":
		if cfg.TokenPath == "" {
			return nil, fmt.Errorf("%w: no token path configured", ErrMissingCredentials)
		}
		return NewFileTokenStore(cfg.TokenPath), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

// NewProvider selects the credential provider variant for cfg. Credential
// files and environment blobs are read and parsed here, so configuration
// errors surface before any network call. in/out are used by the console
// variant's code exchange.
func NewProvider(cfg config.AuthConfig, store TokenStore, in io.Reader, out io.Writer) (Provider, error) {
	mode := ResolveMode(cfg)

	switch mode {
	case config.AuthModeServiceAccount:
		var (
			p   *ServiceAccountProvider
			err error
		)
		if cfg.ServiceAccountJSON != "" {
			p, err = NewServiceAccountProvider([]byte(cfg.ServiceAccountJSON), cfg.Impersonate)
		} else {
			p, err = ServiceAccountFromFile(cfg.ServiceAccountPath, cfg.Impersonate)
		}
		if err != nil {
			return nil, err
		}
		slog.Debug("using service account authentication", "mode", "automated", "email", p.Email())
		return p, nil

	case config.AuthModeConsole:
		oc, err := consoleClientConfig(cfg)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("%w: console mode needs a token store", ErrMissingCredentials)
		}
		slog.Debug("using OAuth console authentication", "mode", "interactive", "store", store)
		return NewOAuthProvider(oc, store, &ConsoleAuthorizer{In: in, Out: out}), nil

	case config.AuthModeUser:
		oc, err := LoadConfig(cfg.CredentialsPath)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("%w: user mode needs a token store", ErrMissingCredentials)
		}
		slog.Debug("using OAuth user authentication", "mode", "interactive", "store", store)
		return NewOAuthProvider(oc, store, &LocalServerAuthorizer{
			Port:        cfg.RedirectPort,
			OpenBrowser: cfg.OpenBrowser,
		}), nil

	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

func consoleClientConfig(cfg config.AuthConfig) (*oauth2.Config, error) {
	if cfg.ClientConfigJSON != "" {
		return ConfigFromJSON([]byte(cfg.ClientConfigJSON))
	}
	return LoadConfig(cfg.CredentialsPath)
}
