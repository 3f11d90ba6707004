// Package lock provides the Redis advisory lock that serializes dispatch of
// one attempt key across concurrent runners.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/reminder"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrNotHeld is returned by Release when the lease expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

type RedisLocker struct {
	client redis.Cmdable
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes key for ttl. It returns false without error when another
// holder owns the key.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (reminder.Lease, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, apperrors.NewLockUnavailableError(key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{client: l.client, key: key, token: token}, true, nil
}

type Lease struct {
	client redis.Cmdable
	key    string
	token  string
}

func (l *Lease) Key() string { return l.key }

// Release deletes the key only while it still carries this lease's token.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return apperrors.NewLockUnavailableError(l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
