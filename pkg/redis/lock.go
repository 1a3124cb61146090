package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a held distributed lock
type Lease struct {
	client *Client
	key    string
	token  string
}

// AcquireLease tries once to take the lock at key. It returns false when
// another holder owns it.
func (c *Client) AcquireLease(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lease{client: c, key: key, token: token}, true, nil
}

// Release gives the lock back. Releasing a lease that already expired and
// was taken by someone else is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		l.client.log.Info("redis_release_lease",
			zap.String("key_prefix", prefixForLog(l.key)),
			zap.Error(err))
		return err
	}
	if n == 0 {
		l.client.log.Debug("redis_release_lease_stale", zap.String("key_prefix", prefixForLog(l.key)))
	}
	return nil
}
