package lock

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/lock/config"
)

var ErrLockTimeout = errors.New("lock wait timeout")

const (
	defaultTTL    = 30 * time.Second
	retryInterval = 50 * time.Millisecond
)

type Locker interface {
	// ждет до отмены ctx, возвращает функцию снятия
	Lock(ctx context.Context, key string) (func(), error)
	Close() error
}

// без адреса redis блокировки локальные для процесса
func NewLocker(ctx context.Context, cfg config.Config, zaplog *zap.Logger) (Locker, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if cfg.RedisAddr == "" {
		zaplog.Info("redis address is not set, using process-local campaign locks")
		return NewLocalLocker(), nil
	}

	client, err := Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisLocker(client, ttl, zaplog), nil
}

func waitRetry(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ctx.Done():
		return errors.Join(ErrLockTimeout, ctx.Err())
	case <-ticker.C:
		return nil
	}
}
