package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "cashback:lock:"

// release удаляет ключ, только если в нем наш токен
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extend продлевает ключ, пока он хранит наш токен.
var extend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Connect: redis:// URL или host:port
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	zaplog *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, zaplog *zap.Logger) Locker {
	return &redisLocker{client: client, ttl: ttl, zaplog: zaplog}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	name := keyPrefix + key

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if err = waitRetry(ctx, ticker); err != nil {
			return nil, err
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// снимаем блокировку даже если контекст запроса уже отменен
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := release.Run(ctx, l.client, []string{name}, token).Err(); err != nil {
				l.zaplog.Warn("lock release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive продлевает TTL каждую треть срока, пока блокировка удерживается.
func (l *redisLocker) keepAlive(name string, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(l.ttl/3, retryInterval))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3+time.Second)
		n, err := extend.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.zaplog.Warn("lock extend failed", zap.String("key", name), zap.Error(err))
		case n == 0:
			l.zaplog.Error("lock lost before release", zap.String("key", name))
			return
		}
	}
}

func (l *redisLocker) Close() error {
	return l.client.Close()
}
