// Package sql declares the configuration and handle shape that the
// postgres and sqlite adapters implement.
package sql

import (
	"time"

	"github.com/social-eventfabric/realtime/pkg/database"
)

// Config configures a SQL adapter connection.
type Config struct {
	Driver database.Driver

	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`

	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
}

// SQL is the handle returned by a SQL adapter's New constructor. It is
// database.DB narrowed to the SQL-specific adapters (postgres, sqlite).
type SQL = database.DB
