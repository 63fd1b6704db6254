package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional --config YAML document: defaults for any
// persistent flag the caller didn't pass explicitly on the command line.
type fileConfig struct {
	LogLevel       string `yaml:"logLevel"`
	LogJSON        bool   `yaml:"logJSON"`
	DataDir        string `yaml:"dataDir"`
	Instance       string `yaml:"instance"`
	SecurePassword string `yaml:"securePassword"`
}

// applyConfigFile fills in any persistent flag left at its zero value from
// the --config file, if one was given. Explicit flags on the command line
// always win.
func applyConfigFile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	flags := cmd.Flags()
	setIfUnset := func(name, value string) {
		if value != "" && !flags.Changed(name) {
			_ = flags.Set(name, value)
		}
	}
	setIfUnset("log-level", fc.LogLevel)
	setIfUnset("data-dir", fc.DataDir)
	setIfUnset("instance", fc.Instance)
	setIfUnset("secure-password", fc.SecurePassword)
	if fc.LogJSON && !flags.Changed("log-json") {
		_ = flags.Set("log-json", "true")
	}

	return nil
}
