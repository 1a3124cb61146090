package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"imageduel/pkg/redis"
)

const leaseRetryInterval = 50 * time.Millisecond

// CommunityLocker serializes lifecycle operations per guild. Within a process
// a per-guild semaphore is used; with Redis configured a lease is also taken
// so several processes can share the database.
type CommunityLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}

	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCommunityLocker creates a locker. redisClient may be nil.
func NewCommunityLocker(redisClient *redis.Client, logger *zap.Logger) *CommunityLocker {
	return &CommunityLocker{
		slots:  make(map[string]chan struct{}),
		redis:  redisClient,
		ttl:    redis.TTLGuildLock,
		logger: logger,
	}
}

func (l *CommunityLocker) slot(guildID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[guildID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[guildID] = ch
	}
	return ch
}

// Lock blocks until the guild is free or ctx is done. The returned function
// releases the lock and must be called exactly once.
func (l *CommunityLocker) Lock(ctx context.Context, guildID string) (func(), error) {
	ch := l.slot(guildID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lease, err := l.acquireLease(ctx, guildID)
	if err != nil {
		<-ch
		return nil, err
	}

	return func() {
		if lease != nil {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = lease.Release(releaseCtx)
			cancel()
		}
		<-ch
	}, nil
}

// acquireLease waits for the distributed lease. A Redis failure degrades to
// the in-process lock only.
func (l *CommunityLocker) acquireLease(ctx context.Context, guildID string) (*redis.Lease, error) {
	if l.redis == nil {
		return nil, nil
	}
	key := l.redis.KeyBuilder.KeyGuildLock(guildID)
	ticker := time.NewTicker(leaseRetryInterval)
	defer ticker.Stop()

	for {
		lease, ok, err := l.redis.AcquireLease(ctx, key, l.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("Guild lease unavailable, continuing with local lock",
				zap.String("guild_id", guildID),
				zap.Error(err))
			return nil, nil
		}
		if ok {
			return lease, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
