package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reglet-dev/netgate/internal/infrastructure/container"
	"github.com/reglet-dev/netgate/internal/infrastructure/system"
)

// CommandContext provides common command dependencies.
type CommandContext struct {
	Container *container.Container
	Logger    *slog.Logger
	Context   context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withContainer wraps a command handler with container initialization.
func withContainer(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		cfg, err := loadSystemConfig()
		if err != nil {
			return err
		}

		c, err := container.New(container.Options{
			Config: cfg,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}

		return handler(&CommandContext{
			Container: c,
			Logger:    logger,
			Context:   cmd.Context(),
		}, cmd, args)
	}
}

// overridable lists the config keys that flags and NETGATE_* variables may set.
var overridable = map[string]func(*system.Config, string){
	"gateway.listen":       func(c *system.Config, v string) { c.Gateway.Listen = v },
	"gateway.codec":        func(c *system.Config, v string) { c.Gateway.Codec = v },
	"metrics.listen":       func(c *system.Config, v string) { c.Metrics.Listen = v },
	"manifest.missing_api": func(c *system.Config, v string) { c.Manifest.MissingAPI = v },
}

// loadSystemConfig reads the config file viper found, then applies flag and
// environment overrides.
func loadSystemConfig() (*system.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = system.DefaultPath()
	}
	cfg, err := system.NewConfigLoader().Load(path)
	if err != nil {
		return nil, err
	}
	for key, set := range overridable {
		if viper.IsSet(key) {
			set(cfg, viper.GetString(key))
		}
	}
	return cfg, nil
}
