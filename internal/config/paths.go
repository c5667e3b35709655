package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName     = "calbot"
	credentialsFile   = "credentials.json"
	tokenFile         = "token.json"
	databaseFile      = "calbot.db"
	configDirPermMode = 0o700
)

// Dir returns the configuration directory path (~/.config/calbot)
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", configDirName), nil
}

// CredentialsPath returns the default path to the OAuth client secret file
func CredentialsPath() string {
	return inDir(credentialsFile)
}

// TokenPath returns the default path to the cached OAuth token
func TokenPath() string {
	return inDir(tokenFile)
}

// DatabasePath returns the default path to the SQLite token database
func DatabasePath() string {
	return inDir(databaseFile)
}

// inDir joins name onto the config directory. Without a home directory the
// file is resolved relative to the working directory.
func inDir(name string) string {
	dir, err := Dir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// EnsureDir creates the parent directory of path with restricted permissions
// if it doesn't exist yet.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, configDirPermMode); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
