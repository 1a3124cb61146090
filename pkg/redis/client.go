package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by Get when the key does not exist
var Nil = redis.Nil

// ErrStaleWrite is returned by the guarded writers when the generation
// counter moved after the caller read it
var ErrStaleWrite = errors.New("redis: generation changed since read")

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// Cache key patterns
const (
	KeyLiveTally          = "duel:%s:tally"             // hash of competitor id -> votes
	KeyLeaderboard        = "guild:%s:leaderboard:%d"   // leaderboard page by limit
	KeyLeaderboardPattern = "guild:%s:leaderboard:*"
	KeyGuildLock          = "guild:%s:lock"

	// generation counters must not match KeyLeaderboardPattern
	KeyLiveTallyGen   = "duel:%s:tally_gen"
	KeyLeaderboardGen = "guild:%s:leaderboard_gen"
)

// TTL constants
const (
	TTLLiveTally   = 30 * time.Second // short, votes move quickly during a window
	TTLLeaderboard = 5 * time.Minute
	TTLGuildLock   = 2 * time.Minute // upper bound on a single lifecycle transition
	TTLGeneration  = 24 * time.Hour
)

// NewClient creates a new Redis client
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log.Named("redis")}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Get retrieves a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Result()
	c.trace("redis_get", key, start, err, redis.Nil)
	return val, err
}

// Set stores a value in Redis with TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	c.trace("redis_set", key, start, err)
	return err
}

// SetNX sets a value only if it doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	c.trace("redis_setnx", key, start, err)
	return ok, err
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.log.Debug("redis_del",
		zap.Int("keys", len(keys)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

// SetHash replaces a hash and sets its TTL in one transaction
func (c *Client) SetHash(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) error {
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeHash(ctx, pipe, key, fields, ttl)
		return nil
	})
	c.trace("redis_set_hash", key, start, err)
	return err
}

func writeHash(ctx context.Context, pipe redis.Pipeliner, key string, fields map[string]interface{}, ttl time.Duration) {
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
	}
}

// Generation reads a generation counter. An unset counter is zero.
func (c *Client) Generation(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.Get(ctx, key).Int64()
	c.trace("redis_get_generation", key, start, err, redis.Nil)
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// BumpGeneration increments a generation counter and refreshes its TTL
func (c *Client) BumpGeneration(ctx context.Context, key string) error {
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, TTLGeneration)
		return nil
	})
	c.trace("redis_bump_generation", key, start, err)
	return err
}

// SetIfGeneration works like Set but only while genKey still holds gen.
// It returns ErrStaleWrite otherwise.
func (c *Client) SetIfGeneration(ctx context.Context, genKey string, gen int64, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.guarded(ctx, genKey, gen, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, value, ttl)
	})
	c.trace("redis_set_guarded", key, start, err, ErrStaleWrite)
	return err
}

// SetHashIfGeneration works like SetHash but only while genKey still holds gen
func (c *Client) SetHashIfGeneration(ctx context.Context, genKey string, gen int64, key string, fields map[string]interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.guarded(ctx, genKey, gen, func(pipe redis.Pipeliner) {
		writeHash(ctx, pipe, key, fields, ttl)
	})
	c.trace("redis_set_hash_guarded", key, start, err, ErrStaleWrite)
	return err
}

// guarded runs write in a MULTI under WATCH on genKey
func (c *Client) guarded(ctx context.Context, genKey string, gen int64, write func(pipe redis.Pipeliner)) error {
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return ErrStaleWrite
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}, genKey)
	if err == redis.TxFailedErr {
		return ErrStaleWrite
	}
	return err
}

// HGetAll gets all fields from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	c.trace("redis_hgetall", key, start, err)
	return m, err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_ping", zap.Duration("duration", dur), zap.Error(err))
	} else {
		c.log.Debug("redis_ping", zap.Duration("duration", dur))
	}
	return err
}

// InvalidatePattern removes keys matching a pattern, walking the keyspace with SCAN
func (c *Client) InvalidatePattern(ctx context.Context, pattern string) error {
	start := time.Now()
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.log.Debug("redis_invalidate_pattern",
		zap.String("key_prefix", prefixForLog(pattern)),
		zap.Int("keys", removed),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (c *Client) trace(op, key string, start time.Time, err error, expected ...error) {
	dur := time.Since(start)
	if err != nil {
		for _, e := range expected {
			if err == e {
				err = nil
				break
			}
		}
	}
	if err != nil {
		c.log.Info(op,
			zap.String("key_prefix", prefixForLog(key)),
			zap.Duration("duration", dur),
			zap.Error(err))
		return
	}
	c.log.Debug(op,
		zap.String("key_prefix", prefixForLog(key)),
		zap.Duration("duration", dur))
}

// prefixForLog returns a safe prefix of a key to avoid logging voter ids
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
