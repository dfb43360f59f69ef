package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TokenEnv overrides the token file when set.
const TokenEnv = "INBOX_TOKEN"

const (
	DefaultBaseURL        = "http://localhost:8080/api"
	DefaultPollInterval   = 30 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxAttachment  = 10 << 20
)

// DefaultAllowedTypes are the attachment MIME types the admin API accepts.
var DefaultAllowedTypes = []string{"application/pdf", "image/*"}

// Duration is a time.Duration that reads and writes as a TOML string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.inbox/config.toml.
type Config struct {
	DefaultSession     string   `toml:"default_session"`
	BaseURL            string   `toml:"base_url"`
	TokenFile          string   `toml:"token_file"`
	PollInterval       Duration `toml:"poll_interval"`
	RequestTimeout     Duration `toml:"request_timeout"`
	MaxAttachmentBytes int64    `toml:"max_attachment_bytes"`
	AllowedTypes       []string `toml:"allowed_types"`
	DownloadDir        string   `toml:"download_dir"`
}

// Default returns a config populated with the observed production behavior.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PollInterval.Duration <= 0 {
		c.PollInterval.Duration = DefaultPollInterval
	}
	if c.RequestTimeout.Duration <= 0 {
		c.RequestTimeout.Duration = DefaultRequestTimeout
	}
	if c.MaxAttachmentBytes <= 0 {
		c.MaxAttachmentBytes = DefaultMaxAttachment
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
}

// Load reads config from the given path and fills unset fields with defaults.
// Returns nil config and error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load that falls back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
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

// Token returns the bearer token: $INBOX_TOKEN first, then the token file.
// An empty string with nil error means no session has been established.
func (c *Config) Token() (string, error) {
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		return v, nil
	}
	if c.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
