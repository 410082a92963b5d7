package lock

import (
	"context"
	"errors"
	"sync"
)

type localLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]chan struct{})}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		done, busy := l.held[key]
		if !busy {
			done = make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			close(l.held[key])
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

func (l *localLocker) Close() error {
	return nil
}
