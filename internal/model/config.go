package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Delivery policies for reminder notifications.
const (
	DeliveryAtMostOnce  = "at-most-once"
	DeliveryAtLeastOnce = "at-least-once"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`

	// AllowedOrigins lists browser origins permitted by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "mongo".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// GoogleClientID enables Google sign-in when set. ID tokens must be
	// issued for this audience.
	GoogleClientID string `mapstructure:"google_client_id" yaml:"google_client_id"`
}

// ReminderConfig controls the periodic reminder sweep.
type ReminderConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is the sweep period; ticks align to wall-clock multiples of it.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Lookahead is the width of the reminder window after now.
	Lookahead time.Duration `mapstructure:"lookahead" yaml:"lookahead"`

	// Delivery is DeliveryAtMostOnce or DeliveryAtLeastOnce.
	Delivery string `mapstructure:"delivery" yaml:"delivery"`

	Workers         int           `mapstructure:"workers" yaml:"workers"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`

	// Timezone is the IANA zone used for due dates without an offset.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// SMTPConfig holds outgoing mail server settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`

	// TLS selects implicit TLS (usually port 465) instead of STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`
}

// TelegramChat routes one user's reminders to a Telegram chat.
type TelegramChat struct {
	Email  string `mapstructure:"email" yaml:"email"`
	ChatID int64  `mapstructure:"chat_id" yaml:"chat_id"`
}

// TelegramConfig holds bot settings for chat reminders.
type TelegramConfig struct {
	Token string `mapstructure:"token" yaml:"token"`

	// Chats is a list rather than a map because emails contain dots, which
	// viper treats as key separators.
	Chats []TelegramChat `mapstructure:"chats" yaml:"chats"`
}

// NotifyConfig selects the reminder transport.
type NotifyConfig struct {
	// Driver is "smtp", "telegram" or "log".
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CredentialsConfig controls secret lookup from the OS keyring.
type CredentialsConfig struct {
	Keyring bool `mapstructure:"keyring" yaml:"keyring"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Reminder    ReminderConfig    `mapstructure:"reminder" yaml:"reminder"`
	Notify      NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
}

// Location resolves the reminder timezone, falling back to UTC.
func (c ReminderConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskminder/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskminder", "config.yaml")
}

// defaultDBPath places the SQLite file next to the default config.
func defaultDBPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "taskminder.db")
}

// setDefaults registers every default so env overrides work for keys that
// are absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", defaultDBPath())
	v.SetDefault("database.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongo_database", "taskminder")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.google_client_id", "")
	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.interval", "1h")
	v.SetDefault("reminder.lookahead", "1h")
	v.SetDefault("reminder.delivery", DeliveryAtMostOnce)
	v.SetDefault("reminder.workers", 4)
	v.SetDefault("reminder.dispatch_timeout", "30s")
	v.SetDefault("reminder.timezone", "UTC")
	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.smtp.host", "")
	v.SetDefault("notify.smtp.port", "587")
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.from", "")
	v.SetDefault("notify.smtp.tls", false)
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("credentials.keyring", false)
}

// DefaultConfig returns the built-in defaults, ignoring any file and the
// environment.
func DefaultConfig() (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding default config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the defaults. Any key can be overridden from the
// environment as TASKMINDER_<SECTION>_<KEY>, e.g. TASKMINDER_SERVER_ADDR.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("taskminder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Notify.Driver {
	case "smtp", "telegram", "log":
	default:
		return fmt.Errorf("unknown notify driver %q", c.Notify.Driver)
	}
	switch c.Reminder.Delivery {
	case DeliveryAtMostOnce, DeliveryAtLeastOnce:
	default:
		return fmt.Errorf("unknown reminder delivery policy %q", c.Reminder.Delivery)
	}
	if c.Reminder.Interval <= 0 {
		return fmt.Errorf("reminder interval must be positive")
	}
	if c.Reminder.Lookahead <= 0 {
		return fmt.Errorf("reminder lookahead must be positive")
	}
	if c.Reminder.Timezone != "" {
		if _, err := time.LoadLocation(c.Reminder.Timezone); err != nil {
			return fmt.Errorf("loading reminder timezone: %w", err)
		}
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("database", cfg.Database)
	v.Set("auth", map[string]any{
		"jwt_secret":       cfg.Auth.JWTSecret,
		"token_ttl":        cfg.Auth.TokenTTL.String(),
		"google_client_id": cfg.Auth.GoogleClientID,
	})
	v.Set("reminder", map[string]any{
		"enabled":          cfg.Reminder.Enabled,
		"interval":         cfg.Reminder.Interval.String(),
		"lookahead":        cfg.Reminder.Lookahead.String(),
		"delivery":         cfg.Reminder.Delivery,
		"workers":          cfg.Reminder.Workers,
		"dispatch_timeout": cfg.Reminder.DispatchTimeout.String(),
		"timezone":         cfg.Reminder.Timezone,
	})
	v.Set("notify", cfg.Notify)
	v.Set("log", cfg.Log)
	v.Set("credentials", cfg.Credentials)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
