package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the main configuration for cms.
type Config struct {
	BaseDir     string           `toml:"base_dir"`
	LogDir      string           `toml:"log_dir"`
	Environment string           `toml:"environment" validate:"oneof=development production"`
	Server      ServerConfig     `toml:"server"`
	Store       StoreConfig      `toml:"store"`
	Encryption  EncryptionConfig `toml:"encryption"`
	RateLimit   RateLimitConfig  `toml:"rate_limit"`
	Sandbox     SandboxConfig    `toml:"sandbox"`
	Messages    MessagesConfig   `toml:"messages"`
	Visitors    VisitorsConfig   `toml:"visitors"`
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	ListenAddr         string `toml:"listen_addr" validate:"required"`
	ClientIDHeader     string `toml:"client_id_header,omitempty"`
	TrustXForwardedFor bool   `toml:"trust_x_forwarded_for"`
}

// StoreConfig represents configuration for the key/value backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type       string `toml:"type" validate:"oneof=auto memory remote redis sqlite badger s3"` // "auto" picks remote or memory
	MaxRetries int    `toml:"max_retries" validate:"gte=1"`

	// Remote-specific fields (only used when the resolved type is "remote")
	RemoteReadURL        string  `toml:"remote_read_url,omitempty"`
	RemoteReadToken      string  `toml:"remote_read_token,omitempty"`
	RemoteWriteURL       string  `toml:"remote_write_url,omitempty"`
	RemoteWriteToken     string  `toml:"remote_write_token,omitempty"`
	RemoteRPS            float64 `toml:"remote_rps,omitempty" validate:"gte=0"`
	RemoteTimeoutSeconds int     `toml:"remote_timeout_seconds,omitempty" validate:"gte=0"`

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	RedisPrefix   string `toml:"redis_prefix,omitempty"`

	// SQLite-specific fields (only used when Type == "sqlite")
	SQLiteDataDir string `toml:"sqlite_data_dir,omitempty"`

	// Badger-specific fields (only used when Type == "badger")
	BadgerDir string `toml:"badger_dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// RemoteConfigured reports whether enough is set to talk to the remote service.
func (s StoreConfig) RemoteConfigured() bool {
	return s.RemoteReadURL != "" && s.RemoteWriteURL != "" && s.RemoteWriteToken != ""
}

// EncryptionConfig holds paths to the age key pair used to seal stored values.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"oneof=none age test"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// RateLimitConfig configures the fixed-window limiter in front of mutating routes.
type RateLimitConfig struct {
	Limit         int     `toml:"limit" validate:"gt=0"`
	WindowSeconds int     `toml:"window_seconds" validate:"gt=0"`
	SweepFraction float64 `toml:"sweep_fraction" validate:"gte=0,lte=1"`
}

// SandboxConfig fixes the one approved content root and extension.
type SandboxConfig struct {
	Root             string `toml:"root" validate:"required"`
	Extension        string `toml:"extension" validate:"required,startswith=."`
	AllowDestructive bool   `toml:"allow_destructive"`
}

// MessagesConfig configures the message board records.
type MessagesConfig struct {
	MaxMessages   int `toml:"max_messages" validate:"gt=0"`
	CooldownHours int `toml:"cooldown_hours" validate:"gt=0"`
	MaxNameLength int `toml:"max_name_length" validate:"gt=0"`
	MaxTextLength int `toml:"max_text_length" validate:"gt=0"`
}

// VisitorsConfig configures the visitor-day counters.
type VisitorsConfig struct {
	RetainDays int `toml:"retain_days" validate:"gt=0"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	cfg := &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "cms.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "cms.key"),
		},
		Sandbox: SandboxConfig{
			Root: filepath.Join(baseDir, "content"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values left by a sparse config file.
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Store.Type == "" {
		c.Store.Type = "auto"
	}
	if c.Store.MaxRetries == 0 {
		c.Store.MaxRetries = 3
	}
	if c.Store.RemoteTimeoutSeconds == 0 {
		c.Store.RemoteTimeoutSeconds = 10
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = "cms"
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "none"
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 60
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.SweepFraction == 0 {
		c.RateLimit.SweepFraction = 0.01
	}
	if c.Sandbox.Extension == "" {
		c.Sandbox.Extension = ".mdx"
	}
	if c.Messages.MaxMessages == 0 {
		c.Messages.MaxMessages = 100
	}
	if c.Messages.CooldownHours == 0 {
		c.Messages.CooldownHours = 6
	}
	if c.Messages.MaxNameLength == 0 {
		c.Messages.MaxNameLength = 50
	}
	if c.Messages.MaxTextLength == 0 {
		c.Messages.MaxTextLength = 500
	}
	if c.Visitors.RetainDays == 0 {
		c.Visitors.RetainDays = 30
	}
}

// Validate checks the structural constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and fills defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
