package locking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisLockTTL   = 30 * time.Second
	defaultRedisRetryWait = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lock shared by every process using the same Redis server.
// A held lock expires after TTL so a crashed holder cannot block an instance forever.
// While Renew is set the holder extends the TTL every third of it until it unlocks.
type Redis struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	TTL       time.Duration
	RetryWait time.Duration
	Renew     bool
}

func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	return &Redis{
		client:    client,
		logger:    logger,
		TTL:       defaultRedisLockTTL,
		RetryWait: defaultRedisRetryWait,
		Renew:     true,
	}
}

// NewRedisFromURL connects to the server at url and checks it responds.
func NewRedisFromURL(ctx context.Context, url string, logger *slog.Logger) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedis(client, logger), nil
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()

	ticker := time.NewTicker(r.RetryWait)
	defer ticker.Stop()

	for {
		acquired, err := r.client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to acquire redis lock %s: %w", key, err)
		}

		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	stopRenewal := func() {}

	if r.Renew {
		renewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stopped := make(chan struct{})

		go r.renew(renewCtx, key, token, stopped)

		stopRenewal = func() {
			cancel()
			<-stopped
		}
	}

	return func(ctx context.Context) error {
		stopRenewal()

		released, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release redis lock %s: %w", key, err)
		}

		if released == 0 {
			r.logger.WarnContext(ctx, "Redis lock expired before release", "key", key)
		}

		return nil
	}, nil
}

func (r *Redis) renew(ctx context.Context, key, token string, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(r.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewed, err := renewScript.Run(ctx, r.client, []string{key}, token, r.TTL.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			r.logger.WarnContext(ctx, "Failed to renew redis lock", "key", key, "error", err)

			continue
		}

		if renewed == 0 {
			r.logger.WarnContext(ctx, "Redis lock lost before renewal", "key", key)

			return
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
