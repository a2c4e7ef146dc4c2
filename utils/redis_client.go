package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/schoolgate/config"
)

var (
	redisMu     sync.RWMutex
	redisClient *redis.Client
	redisReady  bool
)

func redisOptions(cfg config.AppConfig) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	}
}

// GetRedis returns the shared client, dialing it on first use. It is nil when
// Redis is disabled; callers then take their in-process fallback.
func GetRedis() *redis.Client {
	redisMu.RLock()
	if redisReady {
		defer redisMu.RUnlock()
		return redisClient
	}
	redisMu.RUnlock()

	redisMu.Lock()
	defer redisMu.Unlock()
	if redisReady {
		return redisClient
	}
	redisReady = true
	cfg := config.Get()
	if cfg.RedisDisabled {
		return nil
	}
	redisClient = redis.NewClient(redisOptions(cfg))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		Sugar.Warnf("redis ping %s failed, cache and blacklist degrade to memory: %v", redisClient.Options().Addr, err)
	}
	return redisClient
}

// CloseRedis releases the shared client. Later GetRedis calls return nil.
func CloseRedis() {
	redisMu.Lock()
	defer redisMu.Unlock()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			Sugar.Warnf("redis close: %v", err)
		}
	}
	redisClient = nil
	redisReady = true
}
