// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads Warden's layered configuration: defaults, config file
// (warden.yaml in user/system/cwd locations), WARDEN_* environment variables
// and CLI flags, in ascending precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`

	Language string `mapstructure:"language" yaml:"language"`

	// Desired is the path to the desired-state document.
	Desired string `mapstructure:"desired" yaml:"desired"`

	Inventory struct {
		// File is a static YAML inventory. Command, when set, takes
		// precedence and is executed to produce a JSON inventory.
		File      string `mapstructure:"file" yaml:"file"`
		Command   string `mapstructure:"command" yaml:"command"`
		CacheFile string `mapstructure:"cache_file" yaml:"cache_file"`
		CacheTTL  int    `mapstructure:"cache_ttl" yaml:"cache_ttl"` // seconds
		Timeout   int    `mapstructure:"timeout" yaml:"timeout"`     // seconds per command run
	} `mapstructure:"inventory" yaml:"inventory"`

	SSH struct {
		User           string `mapstructure:"user" yaml:"user"`
		IdentityFile   string `mapstructure:"identity_file" yaml:"identity_file"`
		ConnectTimeout int    `mapstructure:"connect_timeout" yaml:"connect_timeout"` // seconds
	} `mapstructure:"ssh" yaml:"ssh"`

	Reconcile struct {
		Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
		UnitTimeout int    `mapstructure:"unit_timeout" yaml:"unit_timeout"` // seconds per host/user unit
		AdminGroup  string `mapstructure:"admin_group" yaml:"admin_group"`
		LoginShell  string `mapstructure:"login_shell" yaml:"login_shell"`
		DenyShell   string `mapstructure:"deny_shell" yaml:"deny_shell"`
		ExpiryDate  string `mapstructure:"expiry_date" yaml:"expiry_date"` // the "already expired" date
		HomeBase    string `mapstructure:"home_base" yaml:"home_base"`     // base dir for home directories
	} `mapstructure:"reconcile" yaml:"reconcile"`

	Archive struct {
		Root string `mapstructure:"root" yaml:"root"`
	} `mapstructure:"archive" yaml:"archive"`
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Warden")
		default: // Linux, macOS, etc.
			configDir = "/etc/warden"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "warden")
	}

	return filepath.Join(configDir, "warden.yaml"), nil
}

// LoadConfig resolves the layered configuration into T. Defaults have the
// lowest precedence, then the config file, then WARDEN_* environment
// variables, then flags bound from cmd.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T
	v := viper.New()

	// 1. Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Set up file search paths
	v.SetConfigName("warden")
	v.SetConfigType("yaml")

	// 3. Add explicit config file path if provided via --config flag.
	// This has the highest precedence for file-based configuration.
	if additionalConfigFilePath != nil {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	// 4. Add standard config locations
	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // Look for warden.yaml in current dir

	// 5. Read in the primary config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	// 6. Read from environment variables
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("warden")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 7. Bind CLI flags
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return c, err
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile persists c as YAML to the user or system config path.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600 because the file may name internal hosts and identity paths.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return err
	}

	return nil
}
