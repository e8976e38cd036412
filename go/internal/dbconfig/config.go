package dbconfig

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds the Postgres settings of the jsonb timer store. URL, when set
// from DATABASE_URL, wins over the individual DB_* parts.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Pool limits for the database/sql handle. The store holds one
	// listener connection on top of these.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Default returns the settings of a local development database.
func Default() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "tasktimer",
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// NewConfigFromEnv overlays DATABASE_URL and DB_* variables on Default.
func NewConfigFromEnv() Config {
	c := Default()
	c.URL = os.Getenv("DATABASE_URL")
	c.Host = getEnv("DB_HOST", c.Host)
	c.Port = getEnvAsInt("DB_PORT", c.Port)
	c.User = getEnv("DB_USER", c.User)
	c.Password = getEnv("DB_PASSWORD", c.Password)
	c.Database = getEnv("DB_NAME", c.Database)
	c.SSLMode = getEnv("DB_SSLMODE", c.SSLMode)
	c.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", c.MaxOpenConns)
	c.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", c.MaxIdleConns)
	if v := os.Getenv("DB_CONN_MAX_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConnMaxLifetime = d
		}
	}
	return c
}

// DSN returns the Postgres connection URL. The same URL serves database/sql,
// the LISTEN connection and pgxpool.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Validate checks the parts needed to build a DSN.
func (c Config) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("invalid DATABASE_URL scheme %q", u.Scheme)
		}
		return nil
	}
	if c.Host == "" || c.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Port)
	}
	return nil
}

// ApplyPool sets the pool limits on db.
func (c Config) ApplyPool(db *sql.DB) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
}

// String describes the target without the password, for logs.
func (c Config) String() string {
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err == nil {
			return u.Redacted()
		}
		return "DATABASE_URL"
	}
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
