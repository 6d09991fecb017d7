// Package redis provides a Redis-backed ports.DistributedLocker, so several
// stageflow processes can serialize turns of the same conversation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces lock keys.
const DefaultPrefix = "stageflow:"

// DefaultPollInterval is the retry interval while a lock is held elsewhere.
const DefaultPollInterval = 100 * time.Millisecond

// ErrLockLost is returned by an UnlockFunc when the key expired or was taken over.
var ErrLockLost = errors.New("distributed lock no longer held")

// unlockScript deletes the key only if it still holds our token.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker using SET NX PX.
type Locker struct {
	client backend.UniversalClient
	prefix string
	poll   time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// NewLocker creates a Redis locker. An empty prefix uses DefaultPrefix.
func NewLocker(client backend.UniversalClient, prefix string, opts ...LockerOption) *Locker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	l := &Locker{client: client, prefix: prefix, poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial connects to addr (host:port or a redis:// URL) and pings it.
func Dial(ctx context.Context, addr string) (*backend.Client, error) {
	opts, err := backend.ParseURL(addr)
	if err != nil {
		opts = &backend.Options{Addr: addr}
	}
	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Key returns the Redis key guarding a conversation.
func (l *Locker) Key(conversationID string) string {
	return l.prefix + "lock:" + conversationID
}

// Lock blocks until the lock for key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.Key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := unlockScript.Run(ctx, l.client, []string{lockKey}, token).Int()
				if err != nil {
					return fmt.Errorf("redis error releasing lock: %w", err)
				}
				if n == 0 {
					return ErrLockLost
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
