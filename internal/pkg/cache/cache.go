package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	storageredis "github.com/gofiber/storage/redis"
	"github.com/overseer-bot/shop/internal/pkg/env"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// limiterDatabase keeps rate limiter counters apart from other cache keys.
const limiterDatabase = 1

var client *redis.Client

// SetupCache initializes the connection to the redis-compatible cache server.
// The cache is optional; an unreachable server is logged, not fatal.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warn().Err(err).Msg("could not connect to cache")
	} else {
		log.Info().Str("reply", pong).Msg("connected to cache")
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Ping reports whether the cache answers.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

// NewLimiterStorage returns redis-backed fiber storage for the rate limiter,
// or nil when the cache is unreachable so the limiter keeps counters in memory.
func NewLimiterStorage() fiber.Storage {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("rate limiter falls back to in-memory storage")
		return nil
	}

	opts := GetClient().Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return storageredis.New(storageredis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
