package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAuthURL     = "https://functions.poehali.dev/391d9d85-8922-4f92-8bb0-d87275577c16"
	DefaultMessagesURL = "https://functions.poehali.dev/f536e054-a014-45e0-a28f-ad322dca5c51"

	envPrefix = "CHATTERBOX_"
)

// Config holds endpoint, polling and local-state settings.
type Config struct {
	AuthURL     string `yaml:"auth_url"`
	MessagesURL string `yaml:"messages_url"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	ChatWaitInterval time.Duration `yaml:"chat_wait_interval"`
	ChatWaitAttempts int           `yaml:"chat_wait_attempts"`

	SessionPath string `yaml:"session_path"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

var ErrMissingConfig = errors.New("config file not found")

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AuthURL:          DefaultAuthURL,
		MessagesURL:      DefaultMessagesURL,
		PollInterval:     5 * time.Second,
		RequestTimeout:   30 * time.Second,
		ChatWaitInterval: 250 * time.Millisecond,
		ChatWaitAttempts: 8,
		SessionPath:      filepath.Join(Dir(), "session.json"),
		LogLevel:         "info",
		LogFile:          filepath.Join(Dir(), "chatterbox.log"),
	}
}

// Dir is the per-user directory chatterbox keeps its files in.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "."
	}
	return filepath.Join(base, "chatterbox")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path, a
// .env file in the working directory and CHATTERBOX_* variables, in
// increasing precedence. An empty path reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if explicit {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	} else if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strVars := map[string]*string{
		"AUTH_URL":     &c.AuthURL,
		"MESSAGES_URL": &c.MessagesURL,
		"SESSION_PATH": &c.SessionPath,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FILE":     &c.LogFile,
	}
	for name, dst := range strVars {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	durVars := map[string]*time.Duration{
		"POLL_INTERVAL":      &c.PollInterval,
		"REQUEST_TIMEOUT":    &c.RequestTimeout,
		"CHAT_WAIT_INTERVAL": &c.ChatWaitInterval,
	}
	for name, dst := range durVars {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(envPrefix + "CHAT_WAIT_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sCHAT_WAIT_ATTEMPTS: %w", envPrefix, err)
		}
		c.ChatWaitAttempts = n
	}
	return nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.AuthURL == "" || c.MessagesURL == "" {
		return errors.New("auth_url and messages_url are required")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.ChatWaitInterval <= 0 || c.ChatWaitAttempts < 1 {
		return errors.New("chat_wait_interval and chat_wait_attempts must be positive")
	}
	return nil
}
