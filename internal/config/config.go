package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of environment overrides, e.g. CHATSYNC_SERVER_URL.
const EnvPrefix = "CHATSYNC"

const (
	DefaultServerURL            = "http://localhost:8080"
	DefaultUserTTL              = 5 * time.Minute
	DefaultPlaceholderTolerance = 5 * time.Second
	DefaultRequestTimeout       = 15 * time.Second
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile" envconfig:"PROFILE"`
	ServerURL      string `toml:"server_url" envconfig:"SERVER_URL"`
	UserID         string `toml:"user_id" envconfig:"USER_ID"`
	Token          string `toml:"token,omitempty" envconfig:"TOKEN"`

	UserTTL              time.Duration `toml:"user_ttl" envconfig:"USER_TTL"`
	PlaceholderTolerance time.Duration `toml:"placeholder_tolerance" envconfig:"PLACEHOLDER_TOLERANCE"`
	RequestTimeout       time.Duration `toml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	LogLevel string `toml:"log_level" envconfig:"LOG_LEVEL"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ServerURL:            DefaultServerURL,
		UserTTL:              DefaultUserTTL,
		PlaceholderTolerance: DefaultPlaceholderTolerance,
		RequestTimeout:       DefaultRequestTimeout,
		LogLevel:             "info",
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error wrapping fs.ErrNotExist if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Resolve builds the effective configuration. Later sources win:
//  1. defaults
//  2. the TOML file at path, if it exists
//  3. variables from envFile (a .env file), if it exists; variables already
//     set in the environment are kept
//  4. CHATSYNC_* environment variables
func Resolve(path, envFile string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.CheckValues(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrNoUser is returned by Validate when no user ID is configured.
var ErrNoUser = errors.New("user_id is not set")

// Validate checks that the configuration can start a client: every value
// is well formed and a user ID is set.
func (c *Config) Validate() error {
	if err := c.CheckValues(); err != nil {
		return err
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("%w: run chatsyncctl config set user_id <id> or set %s_USER_ID", ErrNoUser, EnvPrefix)
	}
	return nil
}

// CheckValues checks that the values present are well formed. Identity may
// still be missing, so a configuration can be built up one key at a time.
func (c *Config) CheckValues() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server_url %q: want an http or https URL", c.ServerURL)
	}
	if c.UserTTL <= 0 {
		return fmt.Errorf("invalid user_ttl %s: must be positive", c.UserTTL)
	}
	if c.PlaceholderTolerance <= 0 {
		return fmt.Errorf("invalid placeholder_tolerance %s: must be positive", c.PlaceholderTolerance)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request_timeout %s: must be positive", c.RequestTimeout)
	}
	return nil
}
