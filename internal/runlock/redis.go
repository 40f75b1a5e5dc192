package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry out only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every replica that talks to the same Redis.
// A held lock is renewed every ttl/3 until released, so a run may outlast ttl.
// A crashed holder stops renewing and its lock expires after ttl.
type Redis struct {
	logger  *slog.Logger
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis connects and pings. It returns nil, nil when no address is configured.
func NewRedis(logger *slog.Logger, cfg config.RedisConfig) (*Redis, error) {
	op := "runlock.NewRedis()"
	log := logger.With(slog.String("op", op))

	if cfg.Address == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("redis run lock enabled", slog.String("address", cfg.Address))
	return NewRedisWithClient(logger, client, cfg.Prefix, cfg.LockTTL, cfg.Timeout), nil
}

func NewRedisWithClient(logger *slog.Logger, client *redis.Client, prefix string, ttl, timeout time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Redis{
		logger:  logger,
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		timeout: timeout,
	}
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

func (r *Redis) Acquire(ctx context.Context, name string) (Release, error) {
	op := "runlock.Redis.Acquire()"

	token := uuid.NewString()
	key := r.key(name)

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ok, err := r.client.SetNX(cctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", op, name, ErrBusy)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			err = r.release(ctx, key, token)
		})
		return err
	}, nil
}

func (r *Redis) release(ctx context.Context, key, token string) error {
	op := "runlock.Redis.release()"

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := unlockScript.Run(cctx, r.client, []string{key}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("failed to release run lock", slog.String("op", op), slog.String("key", key), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		r.logger.Warn("run lock lost before release", slog.String("op", op), slog.String("key", key))
	}
	return nil
}

// keepAlive renews the lock until stop closes or the lock is found taken over.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	op := "runlock.Redis.keepAlive()"
	log := r.logger.With(slog.String("op", op), slog.String("key", key))
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			n, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				// the next tick retries
				log.Warn("failed to renew run lock", sl.Err(err))
				continue
			}
			if n == 0 {
				log.Error("run lock lost while held")
				return
			}
		}
	}
}

func (r *Redis) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit redis lock: %w", ctx.Err())
	default:
		return r.client.Close()
	}
}
