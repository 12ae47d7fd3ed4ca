package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/chatterbox/internal/logger"
	redisstorage "github.com/chatterbox/internal/storage/redis"
)

// ConnectRedisWithRetry connects to Redis, retrying with backoff until maxWait passes.
// logPrefix is prepended to log lines (for example "push: ").
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration, logPrefix string) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry(ctx, maxWait, logPrefix+"redis", func(ctx context.Context) error {
		var err error
		client, err = redisstorage.New(ctx, redisURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%sredis: %w", logPrefix, err)
	}
	return client, nil
}

// retry runs attempt with a per-attempt timeout, doubling the pause up to 30s.
func retry(ctx context.Context, maxWait time.Duration, what string, attempt func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		actx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := attempt(actx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("gave up after %v: %w", maxWait, err)
		}
		logger.Errorf("%s connect failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
