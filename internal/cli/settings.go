package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vvka-141/csvdelta/internal/config"
	"github.com/vvka-141/csvdelta/pkg/csvdelta"
)

// loadProjectConfig loads the env file and the project configuration.
// Returns nil config if csvdelta.yaml does not exist and no path was given.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	if err := config.LoadEnvFile(getStringFlag(cmd, "env-file")); err != nil {
		return nil, err
	}

	if path := getStringFlag(cmd, "config"); path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w: %w", path, csvdelta.ErrInvalidConfig, err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(".")
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil // Config file not found is not an error
		}
		return nil, fmt.Errorf("failed to load %s: %w: %w", config.ConfigFileName, csvdelta.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// resolveSettings merges every configuration source for cmd.
func resolveSettings(cmd *cobra.Command, flags config.Overrides) (*config.Settings, error) {
	projectCfg, err := loadProjectConfig(cmd)
	if err != nil {
		return nil, err
	}
	return config.Resolve(projectCfg, os.LookupEnv, flags)
}
