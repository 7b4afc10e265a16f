package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/flows/pkg/lock"
)

// NewLocker returns a Redis lock shared by every poller when redisURL is set, otherwise a
// process-local one. closeFn releases the Redis connection.
func NewLocker(ctx context.Context, logger *slog.Logger, redisURL string) (locker lock.Locker, closeFn func() error, err error) {
	if redisURL == "" {
		logger.WarnContext(ctx, "No Redis URL configured, poller lock is process-local")

		return lock.NewLocal(), func() error { return nil }, nil
	}

	redisLock, err := lock.NewRedisFromURL(ctx, redisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return redisLock, redisLock.Close, nil
}
