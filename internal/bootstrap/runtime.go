// Package bootstrap performs runtime initialization shared by the
// server and maintenance commands.
package bootstrap

import (
	"fmt"

	"forgegate/internal/cache"
	"forgegate/internal/config"
	"forgegate/internal/database"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs the auto migration after connecting.
	ApplySchema bool
}

// InitRuntime connects to the database and Redis. The Redis client may
// be nil when the broker is unreachable; callers degrade to running
// without notifications.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.ApplySchema {
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("schema migration failed: %w", err)
		}
	}

	cache.InitRedis(cfg.RedisURL)
	return db, cache.GetClient(), nil
}
