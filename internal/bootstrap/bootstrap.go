// Package bootstrap centralizes the driver-selection wiring shared by
// every binary in cmd/: which SQL, cache, and messaging adapter to
// construct for a given internal/config.Config. Keeping this in one
// place means the four binaries agree on DBDriver/CacheDriver/
// MessagingDriver semantics instead of each re-implementing the switch.
package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/social-eventfabric/realtime/internal/config"
	"github.com/social-eventfabric/realtime/pkg/cache"
	cachememory "github.com/social-eventfabric/realtime/pkg/cache/adapters/memory"
	cacheredis "github.com/social-eventfabric/realtime/pkg/cache/adapters/redis"
	"github.com/social-eventfabric/realtime/pkg/database"
	dbsql "github.com/social-eventfabric/realtime/pkg/database/sql"
	"github.com/social-eventfabric/realtime/pkg/database/sql/adapters/postgres"
	"github.com/social-eventfabric/realtime/pkg/database/sql/adapters/sqlite"
	apperrors "github.com/social-eventfabric/realtime/pkg/errors"
	"github.com/social-eventfabric/realtime/pkg/messaging"
	"github.com/social-eventfabric/realtime/pkg/messaging/adapters/kafka"
	"github.com/social-eventfabric/realtime/pkg/messaging/adapters/rabbitmq"
)

// NewDatabase constructs the SQL adapter named by cfg.DBDriver.
func NewDatabase(cfg *config.Config) (database.DB, error) {
	switch database.Driver(cfg.DBDriver) {
	case database.DriverSQLite:
		return sqlite.New(dbsql.Config{Driver: database.DriverSQLite, Name: cfg.DBName})
	default:
		return postgres.New(dbsql.Config{
			Driver:   database.DriverPostgres,
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
	}
}

// NewCache constructs the cache adapter named by cfg.CacheDriver.
func NewCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.CacheDriver == "redis" {
		return cacheredis.New(cache.Config{
			Host:     cfg.CacheHost,
			Port:     cfg.CachePort,
			Password: cfg.CachePassword,
			DB:       cfg.CacheDB,
		})
	}
	return cachememory.New(), nil
}

// NewMessagingBroker constructs the broker adapter named by
// cfg.MessagingDriver.
func NewMessagingBroker(cfg *config.Config) (messaging.Broker, error) {
	switch cfg.MessagingDriver {
	case "kafka":
		return kafka.New(kafka.Config{Brokers: cfg.KafkaBrokers})
	case "rabbitmq", "":
		return rabbitmq.New(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.RabbitMQExchange})
	default:
		return nil, apperrors.InvalidArgument(fmt.Sprintf("unknown messaging driver %q", cfg.MessagingDriver), nil)
	}
}

// NewRedisClient builds the raw go-redis client used directly by
// internal/router (pub/sub) and the distlock/ratelimit redis adapters,
// which take a client rather than the pkg/cache.Cache abstraction.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.CacheHost, cfg.CachePort),
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
	})
}
