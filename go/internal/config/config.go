package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/tasktimer/go/internal/dbconfig"
	"github.com/mcdev12/tasktimer/go/internal/store"
	"github.com/mcdev12/tasktimer/go/internal/telemetry"
	"github.com/mcdev12/tasktimer/go/internal/timer"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

type Config struct {
	Store struct {
		Backend string `yaml:"backend"`
		Key     string `yaml:"key"`
	} `yaml:"store"`

	NATS struct {
		URL           string        `yaml:"url"`
		Bucket        string        `yaml:"bucket"`
		MaxReconnects int           `yaml:"max_reconnects"`
		ReconnectWait time.Duration `yaml:"reconnect_wait"`
		MergeRetries  int           `yaml:"merge_retries"`
	} `yaml:"nats"`

	Postgres struct {
		NotifyChannel    string        `yaml:"notify_channel"`
		FallbackInterval time.Duration `yaml:"fallback_interval"`
		PingInterval     time.Duration `yaml:"ping_interval"`
	} `yaml:"postgres"`

	Timer struct {
		ClientID      string        `yaml:"client_id"`
		TickInterval  time.Duration `yaml:"tick_interval"`
		EditTolerance time.Duration `yaml:"edit_tolerance"`
		ProbeInterval time.Duration `yaml:"probe_interval"`
	} `yaml:"timer"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	LogLevel string `yaml:"log_level"`

	// Database is read from DATABASE_URL and DB_* variables only
	Database dbconfig.Config `yaml:"-"`
}

// Default returns the configuration used when no file or variable is set
func Default() *Config {
	var c Config
	c.Store.Backend = BackendMemory
	c.Store.Key = timer.DefaultKey

	natsCfg := store.DefaultNATSConfig()
	c.NATS.URL = natsCfg.URL
	c.NATS.Bucket = natsCfg.Bucket
	c.NATS.MaxReconnects = natsCfg.MaxReconnects
	c.NATS.ReconnectWait = natsCfg.ReconnectWait
	c.NATS.MergeRetries = natsCfg.MergeRetries

	pgCfg := store.DefaultPostgresConfig()
	c.Postgres.NotifyChannel = pgCfg.NotifyChannel
	c.Postgres.FallbackInterval = pgCfg.FallbackInterval
	c.Postgres.PingInterval = pgCfg.PingInterval

	timerCfg := timer.DefaultConfig()
	c.Timer.TickInterval = timerCfg.TickInterval
	c.Timer.EditTolerance = timerCfg.EditTolerance
	c.Timer.ProbeInterval = 5 * time.Second

	c.Server.Port = "8080"
	c.Telemetry = telemetry.DefaultConfig()
	c.LogLevel = "info"
	return &c
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Store.Backend = getEnv("TIMER_BACKEND", c.Store.Backend)
	c.Store.Key = getEnv("TIMER_KEY", c.Store.Key)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Bucket = getEnv("NATS_BUCKET", c.NATS.Bucket)
	c.NATS.MaxReconnects = getEnvAsInt("NATS_MAX_RECONNECTS", c.NATS.MaxReconnects)
	c.NATS.ReconnectWait = getEnvAsDuration("NATS_RECONNECT_WAIT", c.NATS.ReconnectWait)

	c.Postgres.NotifyChannel = getEnv("PG_NOTIFY_CHANNEL", c.Postgres.NotifyChannel)
	c.Postgres.FallbackInterval = getEnvAsDuration("PG_FALLBACK_INTERVAL", c.Postgres.FallbackInterval)

	c.Timer.ClientID = getEnv("TIMER_CLIENT_ID", c.Timer.ClientID)
	c.Timer.TickInterval = getEnvAsDuration("TIMER_TICK_INTERVAL", c.Timer.TickInterval)
	c.Timer.EditTolerance = getEnvAsDuration("TIMER_EDIT_TOLERANCE", c.Timer.EditTolerance)
	c.Timer.ProbeInterval = getEnvAsDuration("TIMER_PROBE_INTERVAL", c.Timer.ProbeInterval)

	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.Environment = getEnv("ENVIRONMENT", c.Telemetry.Environment)
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Database = dbconfig.NewConfigFromEnv()
}

// Validate checks the settings the daemon cannot start without
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendNATS, BackendPostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Key == "" {
		return errors.New("store key is required")
	}
	if c.Timer.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Timer.TickInterval)
	}
	if c.Timer.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %s", c.Timer.ProbeInterval)
	}
	if c.Timer.EditTolerance < 0 {
		return fmt.Errorf("edit tolerance must not be negative, got %s", c.Timer.EditTolerance)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.Store.Backend == BackendPostgres {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("postgres backend: %w", err)
		}
	}
	return nil
}

// NATSConfig maps the NATS settings onto the store configuration
func (c *Config) NATSConfig() store.NATSConfig {
	cfg := store.DefaultNATSConfig()
	cfg.URL = c.NATS.URL
	cfg.Bucket = c.NATS.Bucket
	cfg.MaxReconnects = c.NATS.MaxReconnects
	cfg.ReconnectWait = c.NATS.ReconnectWait
	if c.NATS.MergeRetries > 0 {
		cfg.MergeRetries = c.NATS.MergeRetries
	}
	return cfg
}

// PostgresConfig maps the Postgres settings onto the store configuration
func (c *Config) PostgresConfig() store.PostgresConfig {
	cfg := store.DefaultPostgresConfig()
	cfg.DatabaseURL = c.Database.DSN()
	cfg.NotifyChannel = c.Postgres.NotifyChannel
	if c.Postgres.FallbackInterval > 0 {
		cfg.FallbackInterval = c.Postgres.FallbackInterval
	}
	if c.Postgres.PingInterval > 0 {
		cfg.PingInterval = c.Postgres.PingInterval
	}
	return cfg
}

// TimerConfig maps the timer settings onto the app configuration
func (c *Config) TimerConfig() timer.Config {
	cfg := timer.DefaultConfig()
	if c.Timer.ClientID != "" {
		cfg.ClientID = c.Timer.ClientID
	}
	cfg.TickInterval = c.Timer.TickInterval
	cfg.EditTolerance = c.Timer.EditTolerance
	return cfg
}

// Level returns the parsed log level
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
