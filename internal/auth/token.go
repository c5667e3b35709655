package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/drewfead/calbot/internal/config"
	"golang.org/x/oauth2"
)

const tokenFilePermMode = 0o600

// ErrNoToken is returned by a TokenStore that holds no token yet.
var ErrNoToken = errors.New("no cached token")

// TokenStore persists the OAuth token between runs. Implementations treat
// the token as opaque JSON.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// FileTokenStore keeps the token in a JSON file.
type FileTokenStore struct {
	Path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

// Load reads the token file. A missing file yields ErrNoToken.
func (s *FileTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to decode token: %w", err)
	}

	return tok, nil
}

// Save writes the token file with owner-only permissions, creating the
// parent directory if needed.
func (s *FileTokenStore) Save(_ context.Context, token *oauth2.Token) error {
	if err := config.EnsureDir(s.Path); err != nil {
		return err
	}

	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, tokenFilePermMode)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to encode token: %w", err)
	}

	return nil
}

func (s *FileTokenStore) String() string {
	return s.Path
}
