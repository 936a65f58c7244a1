// Package database defines the driver-agnostic handle that SQL adapters
// implement, plus a shared GORM logger that writes through pkg/logger.
// The postgres adapter uses it; the sqlite adapter uses GORM's default
// logger.
package database

import (
	"context"
	"time"

	"github.com/social-eventfabric/realtime/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Driver identifies which SQL backend an adapter talks to.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// DB is the handle every SQL adapter (postgres, sqlite) implements.
type DB interface {
	// Get returns the primary database connection bound to ctx.
	Get(ctx context.Context) *gorm.DB

	// GetShard returns the connection responsible for key. Single-instance
	// adapters return their primary connection for every key.
	GetShard(ctx context.Context, key string) (*gorm.DB, error)

	// Close releases all connections held by the adapter.
	Close() error
}

// NewGORMLogger returns a GORM logger that writes through pkg/logger so
// slow-query and error logging lines up with the rest of the service's
// structured logs.
func NewGORMLogger() gormlogger.Interface {
	return &slogGORMLogger{slowThreshold: 200 * time.Millisecond}
}

type slogGORMLogger struct {
	slowThreshold time.Duration
	logLevel      gormlogger.LogLevel
}

func (l *slogGORMLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *slogGORMLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	logger.L().InfoContext(ctx, msg, "args", args)
}

func (l *slogGORMLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	logger.L().WarnContext(ctx, msg, "args", args)
}

func (l *slogGORMLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	logger.L().ErrorContext(ctx, msg, "args", args)
}

func (l *slogGORMLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil:
		logger.L().ErrorContext(ctx, "gorm query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		logger.L().WarnContext(ctx, "slow gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	default:
		logger.L().DebugContext(ctx, "gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
