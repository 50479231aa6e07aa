// Package cache provides Redis client initialization for the application.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"forgegate/internal/middleware"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// InitRedis initializes the Redis client with the given address. addr
// is either a plain host:port or a redis:// URL. Notifications and rate
// limiting degrade to no-ops when the connection cannot be made, so a
// failure here only logs.
func InitRedis(addr string) {
	logger := middleware.Logger.With(slog.String("component", "redis"))

	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			logger.Warn("invalid REDIS_URL, continuing without notifications",
				slog.String("addr", addr),
				slog.String("error", err.Error()))
			client = nil
			return
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client = redis.NewClient(opts)
	client.AddHook(metricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without notifications",
			slog.String("addr", opts.Addr),
			slog.String("error", err.Error()))
		client = nil
		return
	}
	logger.Info("redis connected", slog.String("addr", opts.Addr))
}

// GetClient returns the current Redis client instance.
func GetClient() *redis.Client {
	return client
}
