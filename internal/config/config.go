package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Client selection strategies.
const (
	SelectionProtocol = "protocol"
	SelectionFirst    = "first"
)

// DownloadsConfig tunes the download engine.
type DownloadsConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	HealthInterval    time.Duration `mapstructure:"health_interval"`
	PollConcurrency   int           `mapstructure:"poll_concurrency"`
	HistoryLimitMax   int           `mapstructure:"history_limit_max"`
	// SelectionStrategy is "protocol" or "first".
	SelectionStrategy string `mapstructure:"selection_strategy"`
	// MatchSizeTolerance is the relative size difference allowed when
	// pairing unconfirmed downloads with backend items.
	MatchSizeTolerance float64 `mapstructure:"match_size_tolerance"`
	// BlackholeDir is the watch folder for blackhole clients without one.
	BlackholeDir string `mapstructure:"blackhole_dir"`
	// StatusAliases maps extra backend status words onto canonical statuses.
	StatusAliases map[string]string `mapstructure:"status_aliases"`
}

// SecurityConfig holds the key material for stored client credentials.
type SecurityConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	SaltPath  string `mapstructure:"salt_path"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8787,
		},
		Database: DatabaseConfig{
			Path:        "./data/bindery.db",
			BusyTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Downloads: DownloadsConfig{
			PollInterval:       30 * time.Second,
			ReconcileInterval:  5 * time.Minute,
			HealthInterval:     6 * time.Hour,
			PollConcurrency:    4,
			HistoryLimitMax:    500,
			SelectionStrategy:  SelectionProtocol,
			MatchSizeTolerance: 0.05,
		},
		Security: SecurityConfig{
			SaltPath: "./data/secret.salt",
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults. A .env file in
// the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.bindery")
	}

	v.SetEnvPrefix("BINDERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("downloads.poll_interval", d.Downloads.PollInterval)
	v.SetDefault("downloads.reconcile_interval", d.Downloads.ReconcileInterval)
	v.SetDefault("downloads.health_interval", d.Downloads.HealthInterval)
	v.SetDefault("downloads.poll_concurrency", d.Downloads.PollConcurrency)
	v.SetDefault("downloads.history_limit_max", d.Downloads.HistoryLimitMax)
	v.SetDefault("downloads.selection_strategy", d.Downloads.SelectionStrategy)
	v.SetDefault("downloads.match_size_tolerance", d.Downloads.MatchSizeTolerance)
	v.SetDefault("downloads.blackhole_dir", "")

	v.SetDefault("security.secret_key", "")
	v.SetDefault("security.salt_path", d.Security.SaltPath)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path must be set")
	}
	for name, d := range map[string]time.Duration{
		"downloads.poll_interval":      c.Downloads.PollInterval,
		"downloads.reconcile_interval": c.Downloads.ReconcileInterval,
		"downloads.health_interval":    c.Downloads.HealthInterval,
	} {
		if d < time.Second {
			return fmt.Errorf("%s must be at least 1s, got %s", name, d)
		}
	}
	if c.Downloads.PollConcurrency < 1 {
		return fmt.Errorf("downloads.poll_concurrency must be positive, got %d", c.Downloads.PollConcurrency)
	}
	if c.Downloads.HistoryLimitMax < 1 {
		return fmt.Errorf("downloads.history_limit_max must be positive, got %d", c.Downloads.HistoryLimitMax)
	}
	switch c.Downloads.SelectionStrategy {
	case SelectionProtocol, SelectionFirst:
	default:
		return fmt.Errorf("downloads.selection_strategy must be %q or %q, got %q",
			SelectionProtocol, SelectionFirst, c.Downloads.SelectionStrategy)
	}
	if c.Downloads.MatchSizeTolerance < 0 || c.Downloads.MatchSizeTolerance > 1 {
		return fmt.Errorf("downloads.match_size_tolerance must be between 0 and 1, got %g", c.Downloads.MatchSizeTolerance)
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SaltFile returns the salt path, falling back to a file beside the database.
func (c *Config) SaltFile() string {
	if c.Security.SaltPath != "" {
		return c.Security.SaltPath
	}
	return filepath.Join(filepath.Dir(c.Database.Path), "secret.salt")
}
