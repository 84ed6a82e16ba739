package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// AuthConfig holds the OAuth device flow settings. The zero value is
// incomplete; use Defaults (or Load, which starts from it) to get a
// working configuration.
type AuthConfig struct {
	ClientID      string `toml:"client_id"`
	DeviceCodeURL string `toml:"device_code_url"`
	TokenURL      string `toml:"token_url"`
	APIBaseURL    string `toml:"api_base_url"`
	Scopes        string `toml:"scopes"`
	MaxAttempts   int    `toml:"max_poll_attempts"`
	PollInterval  int    `toml:"poll_interval"` // seconds

	// Token is an externally supplied bearer credential. When set it takes
	// precedence over the credential store; it cannot be logged out, only
	// unset. Usually populated from GITHUB_TOKEN rather than the file.
	Token string `toml:"token"`
}

// Config holds all hubcli configuration.
type Config struct {
	Auth AuthConfig `toml:"auth"`
}

// defaultClientID is the client ID of the hubcli OAuth app. It is
// non-confidential (device flow apps have no secret) so it is safe to
// distribute with the binary. Users can override it via auth.client_id
// in ~/.config/hubcli/config.toml or HUBCLI_CLIENT_ID.
const defaultClientID = "Iv1.c42d2e9c91e3a928"

// Defaults returns the built-in configuration for github.com.
func Defaults() Config {
	return Config{
		Auth: AuthConfig{
			ClientID:      defaultClientID,
			DeviceCodeURL: "https://github.com/login/device/code",
			TokenURL:      "https://github.com/login/oauth/access_token",
			APIBaseURL:    "https://api.github.com",
			Scopes:        "repo,read:user,user:email,gist,workflow",
			MaxAttempts:   60,
			PollInterval:  5,
		},
	}
}

// Load reads configuration from the given TOML file path, layered over
// Defaults. If the file does not exist, the defaults are returned without
// error. Environment variables always take precedence over file values:
//   - HUBCLI_CLIENT_ID overrides auth.client_id
//   - HUBCLI_API_URL   overrides auth.api_base_url
func Load(path string) (Config, error) {
	cfg := Defaults()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the hubcli config file.
// It fails when the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultTokenStorePath returns the default path for the credential store.
// The file holds access tokens, so it is written with 0600 permissions.
func DefaultTokenStorePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokens.json"), nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "hubcli"), nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HUBCLI_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("HUBCLI_API_URL"); v != "" {
		cfg.Auth.APIBaseURL = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
}

// Save writes cfg to the given TOML file path, creating parent directories
// as needed. Existing file contents are overwritten. Permissions on the
// written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
