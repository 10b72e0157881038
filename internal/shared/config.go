package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	ICloud       ICloudConfig       `toml:"icloud"`
	Sync         SyncConfig         `toml:"sync"`
	Retry        RetryConfig        `toml:"retry"`
	PhotoStation PhotoStationConfig `toml:"photostation"`
	ObjectStore  ObjectStoreConfig  `toml:"objectstore"`
	Notification NotificationConfig `toml:"notification"`
	Database     DatabaseConfig     `toml:"database"`
}

// ICloudConfig contains the remote library account settings.
type ICloudConfig struct {
	Username          string  `toml:"username"`
	Password          string  `toml:"password"`
	SessionDir        string  `toml:"session_dir"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// SyncConfig holds the defaults for a sync pass. Flags override every field.
type SyncConfig struct {
	Size               string `toml:"size"`
	Recent             int    `toml:"recent"`
	UntilFound         int    `toml:"until_found"`
	DownloadVideos     bool   `toml:"download_videos"`
	ForceSize          bool   `toml:"force_size"`
	AutoDelete         bool   `toml:"auto_delete"`
	OnlyPrintFilenames bool   `toml:"only_print_filenames"`
	KeepGoing          bool   `toml:"keep_going"`
	ConvertHEIC        bool   `toml:"convert_heic"`
	HEICConverter      string `toml:"heic_converter"`
}

// RetryConfig configures the retry executor.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	WaitSeconds int `toml:"wait_seconds"`
}

// Wait returns the fixed backoff interval.
func (r RetryConfig) Wait() time.Duration {
	return time.Duration(r.WaitSeconds) * time.Second
}

// PhotoStationConfig contains the remote photo server credentials.
//
// When ClientID is set, tokens are fetched with the client credentials grant from TokenURL
// instead of a username/password login.
type PhotoStationConfig struct {
	URL          string `toml:"url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	TokenURL     string `toml:"token_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// ObjectStoreConfig contains S3-compatible storage settings.
type ObjectStoreConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// NotificationConfig contains SMTP settings for authentication-expiry alerts.
type NotificationConfig struct {
	SMTPHost     string `toml:"smtp_host"`
	SMTPPort     int    `toml:"smtp_port"`
	SMTPUsername string `toml:"smtp_username"`
	SMTPPassword string `toml:"smtp_password"`
	SMTPNoTLS    bool   `toml:"smtp_no_tls"`
	From         string `toml:"from"`
	To           string `toml:"to"`
}

// Enabled reports whether enough settings are present to send mail.
func (n NotificationConfig) Enabled() bool {
	return n.SMTPHost != "" && n.To != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
// Keys missing from the file keep their embedded default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be corrected by flag overrides.
func (c *Config) Validate() error {
	switch {
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig)
	case c.Retry.WaitSeconds < 0:
		return fmt.Errorf("%w: retry.wait_seconds must not be negative", ErrInvalidConfig)
	case c.Sync.Recent < 0 || c.Sync.UntilFound < 0:
		return fmt.Errorf("%w: sync.recent and sync.until_found must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
