package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-holder lease stored under one key. It expires after ttl
// so a crashed holder cannot block others forever.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLock returns a lock on key. A nil client uses the shared client.
func NewLock(c *redis.Client, key string, ttl time.Duration) *Lock {
	if c == nil {
		c = GetClient()
	}
	return &Lock{client: c, key: key, ttl: ttl}
}

// Key returns the Redis key of the lock
func (l *Lock) Key() string { return l.key }

// TryAcquire takes the lock if it is free. The returned token is needed for Release.
func (l *Lock) TryAcquire(c context.Context) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(c, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it. Releasing an expired or foreign lock is a no-op.
func (l *Lock) Release(c context.Context, token string) error {
	err := releaseScript.Run(c, l.client, []string{l.key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
