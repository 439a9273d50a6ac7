// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads Joinguard's settings from files, environment and
// command-line flags using Viper, and writes them back as YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/toeirei/joinguard/internal/i18n"
)

// Placeholder values shipped in fresh configuration files. They count as
// "not configured".
const (
	PlaceholderAPIKey  = "YOUR_DEFAULT_KEY"
	PlaceholderBotName = "YOUR_BOT_USERNAME"
)

// ErrBotNotConfigured is returned when the chat bot credentials are blank or
// still hold the placeholder values.
var ErrBotNotConfigured = errors.New("telegram bot is not configured")

// Config is the complete runtime configuration.
type Config struct {
	TelegramAPIKey  string `mapstructure:"telegramApiKey" yaml:"telegramApiKey"`
	TelegramBotName string `mapstructure:"telegramBotName" yaml:"telegramBotName"`

	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`

	Language string `mapstructure:"language" yaml:"language"`

	Log struct {
		Level string `mapstructure:"level" yaml:"level"`
	} `mapstructure:"log" yaml:"log"`

	Challenge struct {
		TTL            time.Duration `mapstructure:"ttl" yaml:"ttl"`
		PromptInterval time.Duration `mapstructure:"prompt_interval" yaml:"prompt_interval"`
		PromptBurst    int           `mapstructure:"prompt_burst" yaml:"prompt_burst"`
		SweepInterval  time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	} `mapstructure:"challenge" yaml:"challenge"`

	Persist struct {
		Retries int           `mapstructure:"retries" yaml:"retries"`
		Backoff time.Duration `mapstructure:"backoff" yaml:"backoff"`
	} `mapstructure:"persist" yaml:"persist"`

	Host struct {
		Listen string `mapstructure:"listen" yaml:"listen"`
		Token  string `mapstructure:"token" yaml:"token"`
	} `mapstructure:"host" yaml:"host"`
}

// Defaults returns the default value of every known key.
func Defaults() map[string]any {
	return map[string]any{
		"telegramApiKey":            PlaceholderAPIKey,
		"telegramBotName":           PlaceholderBotName,
		"database.type":             "json",
		"database.dsn":              filepath.Join("config", "joinguard_users.json"),
		"language":                  "en",
		"log.level":                 "info",
		"challenge.ttl":             "10m",
		"challenge.prompt_interval": "30s",
		"challenge.prompt_burst":    3,
		"challenge.sweep_interval":  "1m",
		"persist.retries":           3,
		"persist.backoff":           "200ms",
		"host.listen":               "127.0.0.1:8765",
		"host.token":                "",
	}
}

// flagAliases maps configuration keys to the CLI flags that override them.
var flagAliases = map[string]string{
	"database.type": "db-type",
	"database.dsn":  "db-dsn",
	"language":      "lang",
	"log.level":     "log-level",
}

// ValidateBot checks the chat bot credentials.
func (c Config) ValidateBot() error {
	key := strings.TrimSpace(c.TelegramAPIKey)
	if key == "" || key == PlaceholderAPIKey {
		return fmt.Errorf("%w: telegramApiKey is empty", ErrBotNotConfigured)
	}
	name := strings.TrimSpace(c.TelegramBotName)
	if name == "" || name == PlaceholderBotName {
		return fmt.Errorf("%w: telegramBotName is empty", ErrBotNotConfigured)
	}
	return nil
}

// Validate checks the non-credential settings for values the services
// cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Challenge.TTL <= 0 {
		errs = append(errs, fmt.Errorf("challenge.ttl must be positive, got %s", c.Challenge.TTL))
	}
	if c.Challenge.PromptInterval < 0 {
		errs = append(errs, fmt.Errorf("challenge.prompt_interval must not be negative, got %s", c.Challenge.PromptInterval))
	}
	if c.Challenge.PromptBurst < 1 {
		errs = append(errs, fmt.Errorf("challenge.prompt_burst must be at least 1, got %d", c.Challenge.PromptBurst))
	}
	if c.Challenge.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("challenge.sweep_interval must be positive, got %s", c.Challenge.SweepInterval))
	}
	if c.Persist.Retries < 0 {
		errs = append(errs, fmt.Errorf("persist.retries must not be negative, got %d", c.Persist.Retries))
	}
	if !i18n.IsAvailable(c.Language) {
		errs = append(errs, fmt.Errorf("language %q is not available, choose one of %s", c.Language, strings.Join(i18n.AvailableTags(), ", ")))
	}
	if strings.TrimSpace(c.Database.Dsn) == "" {
		errs = append(errs, errors.New("database.dsn must not be empty"))
	}
	return errors.Join(errs...)
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Joinguard")
		default: // Linux, macOS, etc.
			configDir = "/etc/joinguard"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "joinguard")
	}

	return filepath.Join(configDir, "joinguard.yaml"), nil
}

// LoadConfig resolves T from defaults, the first config file found, the
// environment (JOINGUARD_ prefix) and the flags of cmd, in increasing order
// of precedence.
//
// When no usable config file exists the populated value is returned together
// with a viper.ConfigFileNotFoundError; callers usually treat that as a notice.
// An empty file counts as not found.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("joinguard")
	v.SetConfigType("yaml")

	// An explicit --config path has the highest precedence for file-based configuration.
	if additionalConfigFilePath != nil && *additionalConfigFilePath != "" {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	var notFound error
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, os.ErrNotExist) {
			return c, err
		}
		notFound = viper.ConfigFileNotFoundError{}
	} else if used := v.ConfigFileUsed(); isEmptyFile(used) {
		notFound = viper.ConfigFileNotFoundError{}
	}

	if notFound != nil {
		mergeLegacyBotConfig(v)
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("joinguard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
		for key, name := range flagAliases {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := bindChangedFlag(v, key, f); err != nil {
					return c, err
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, notFound
}

// bindChangedFlag binds f to key only when the user set it, so an empty
// flag default never hides a value from the config file or environment.
func bindChangedFlag(v *viper.Viper, key string, f *pflag.Flag) error {
	if !f.Changed {
		return nil
	}
	return v.BindPFlag(key, f)
}

func isEmptyFile(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Size() == 0
}

// legacyBotConfigFile is the JSON file older installations keep their bot
// credentials in.
var legacyBotConfigFile = filepath.Join("config", "joinguard_bot_config.json")

// mergeLegacyBotConfig reads the legacy bot credentials file when no YAML
// configuration was found. A malformed legacy file is ignored.
func mergeLegacyBotConfig(v *viper.Viper) {
	if _, err := os.Stat(legacyBotConfigFile); err != nil {
		return
	}
	v.SetConfigFile(legacyBotConfigFile)
	v.SetConfigType("json")
	_ = v.MergeInConfig()
	v.SetConfigFile("")
	v.SetConfigType("yaml")
}

// WriteConfigFile writes c as YAML to the user or system config path.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}
	return WriteConfigFileTo(c, path)
}

// WriteConfigFileTo writes c as YAML to path, creating the directory.
func WriteConfigFileTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600: the file holds the bot token.
	return os.WriteFile(path, data, 0600)
}
