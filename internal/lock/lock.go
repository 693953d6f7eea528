package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld     = errors.New("operation lock is held by another operation")
	ErrLockLost     = errors.New("operation lock expired before release")
	ErrInvalidTTL   = errors.New("lock ttl must be positive")
	ErrEmptyLockKey = errors.New("lock key is empty")
)

// Locker serializes operations on one instance.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// The returned release must be called exactly once.
	Acquire(ctx context.Context, key string) (release func() error, err error)
}

// LocalLocker is a per-key mutex for a single keeper process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func() error, error) {
	if key == "" {
		return nil, ErrEmptyLockKey
	}
	s := l.slot(key)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrLockHeld, key, ctx.Err())
	}
	var once sync.Once
	return func() error {
		once.Do(func() { <-s })
		return nil
	}, nil
}

// Deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds the lock as a redis key with a TTL so several keeper processes can share instances.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	return &RedisLocker{client: client, prefix: "joint:lock:", ttl: ttl, poll: 100 * time.Millisecond}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func() error, error) {
	if key == "" {
		return nil, ErrEmptyLockKey
	}
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockHeld, key, ctx.Err())
		}
	}

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			// Release must work even when the operation context was cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var deleted int64
			deleted, err = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int64()
			if err == nil && deleted == 0 {
				err = fmt.Errorf("%w: %s", ErrLockLost, key)
			}
		})
		return err
	}, nil
}

var (
	_ Locker = (*LocalLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
