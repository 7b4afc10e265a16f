package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: "flows:lock:",
		logger: logger.With("module", "redis_lock"),
	}
}

// NewRedisFromURL parses a redis:// URL and pings the server.
func NewRedisFromURL(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewRedis(client, logger), nil
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	name := r.prefix + key

	ok, err := r.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		return nil, ErrNotAcquired
	}

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, r.client, []string{name}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}

		if deleted == 0 {
			r.logger.WarnContext(ctx, "lock expired before release", "key", key)
		}

		return nil
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
