package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/waabox/hubcli/internal/auth"
	"github.com/waabox/hubcli/internal/config"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "hubcli",
	Short:         "A terminal client for GitHub",
	Long:          "hubcli is a terminal client for the GitHub API.\n\nRun 'hubcli auth login' to get started.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/hubcli/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(authCmd)
}

// buildLogger creates a console logger on stderr. Warnings and errors only,
// unless --verbose asks for debug output.
func buildLogger() (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

// buildAuthenticator wires the authentication components from the config
// file and the default credential store location.
func buildAuthenticator() (*auth.Authenticator, *auth.TokenStore, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return nil, nil, fmt.Errorf("locating config: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := buildLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	storePath, err := config.DefaultTokenStorePath()
	if err != nil {
		return nil, nil, fmt.Errorf("locating credential store: %w", err)
	}
	store := auth.NewTokenStore(storePath, logger)
	sso := auth.NewSSOCoordinator(cfg.Auth.APIBaseURL, logger)
	return auth.NewAuthenticator(cfg.Auth, store, sso, logger), store, nil
}
