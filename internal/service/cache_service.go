package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/pkg/redis"
)

const totalField = "total"

// CacheService keeps the live tally and leaderboard in Redis. A nil client
// turns every method into a pass-through to the loader.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

func (c *CacheService) enabled() bool {
	return c != nil && c.redis != nil
}

// GetLiveTally returns the cached tally of a duel, loading and caching it on a miss.
// The write-back is dropped when the tally was invalidated during the load.
func (c *CacheService) GetLiveTally(ctx context.Context, duelID uuid.UUID, load func(ctx context.Context) (*domain.Tally, error)) (*domain.Tally, error) {
	if !c.enabled() {
		return load(ctx)
	}
	key := c.redis.KeyBuilder.KeyLiveTally(duelID.String())

	fields, err := c.redis.HGetAll(ctx, key)
	if err != nil {
		c.logger.Warn("Live tally cache error, falling back to database",
			zap.String("duel_id", duelID.String()),
			zap.Error(err))
	} else if len(fields) > 0 {
		if tally, ok := decodeTally(duelID, fields); ok {
			c.logger.Debug("Live tally cache hit", zap.String("duel_id", duelID.String()))
			return tally, nil
		}
		c.logger.Warn("Live tally cache corrupted, falling back to database",
			zap.String("duel_id", duelID.String()))
	}

	genKey := c.redis.KeyBuilder.KeyLiveTallyGen(duelID.String())
	gen, genErr := c.redis.Generation(ctx, genKey)

	tally, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("database fallback failed: %w", err)
	}
	if genErr != nil {
		c.logger.Warn("Live tally generation unavailable, not caching",
			zap.String("duel_id", duelID.String()),
			zap.Error(genErr))
		return tally, nil
	}

	values := make(map[string]interface{}, len(tally.Counts)+1)
	for id, n := range tally.Counts {
		values[id.String()] = n
	}
	values[totalField] = tally.Total
	err = c.redis.SetHashIfGeneration(ctx, genKey, gen, key, values, redis.TTLLiveTally)
	if errors.Is(err, redis.ErrStaleWrite) {
		c.logger.Debug("Live tally invalidated during load, not caching",
			zap.String("duel_id", duelID.String()))
	} else if err != nil {
		c.logger.Warn("Failed to cache live tally",
			zap.String("duel_id", duelID.String()),
			zap.Error(err))
	}
	return tally, nil
}

// InvalidateLiveTally drops the cached tally after a vote
func (c *CacheService) InvalidateLiveTally(ctx context.Context, duelID uuid.UUID) {
	if !c.enabled() {
		return
	}
	id := duelID.String()
	if err := c.redis.BumpGeneration(ctx, c.redis.KeyBuilder.KeyLiveTallyGen(id)); err != nil {
		c.logger.Warn("Failed to bump live tally generation",
			zap.String("duel_id", id),
			zap.Error(err))
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyLiveTally(id)); err != nil {
		c.logger.Warn("Failed to invalidate live tally",
			zap.String("duel_id", duelID.String()),
			zap.Error(err))
	}
}

// GetLeaderboard returns a cached leaderboard page, loading it on a miss.
// The cache fill happens in the background.
func (c *CacheService) GetLeaderboard(ctx context.Context, guildID string, limit int, load func(ctx context.Context) ([]domain.Competitor, error)) ([]domain.Competitor, error) {
	if !c.enabled() {
		return load(ctx)
	}
	key := c.redis.KeyBuilder.KeyLeaderboard(guildID, limit)
	genKey := c.redis.KeyBuilder.KeyLeaderboardGen(guildID)

	cached, err := c.redis.Get(ctx, key)
	if err == nil && cached != "" {
		var rows []domain.Competitor
		if jsonErr := json.Unmarshal([]byte(cached), &rows); jsonErr == nil {
			c.logger.Debug("Leaderboard cache hit", zap.String("guild_id", guildID))
			return rows, nil
		} else {
			c.logger.Warn("Leaderboard cache corrupted, falling back to database",
				zap.String("guild_id", guildID),
				zap.Error(jsonErr))
		}
	} else if err != nil && err != redis.Nil {
		c.logger.Warn("Leaderboard cache error, falling back to database",
			zap.String("guild_id", guildID),
			zap.Error(err))
	}

	gen, genErr := c.redis.Generation(ctx, genKey)

	rows, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("database fallback failed: %w", err)
	}

	if genErr != nil {
		c.logger.Warn("Leaderboard generation unavailable, not caching",
			zap.String("guild_id", guildID),
			zap.Error(genErr))
	} else {
		go c.cacheLeaderboardAsync(genKey, gen, key, rows)
	}

	return rows, nil
}

// cacheLeaderboardAsync writes the page unless the leaderboard generation moved past gen
func (c *CacheService) cacheLeaderboardAsync(genKey string, gen int64, key string, rows []domain.Competitor) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(rows)
	if err != nil {
		c.logger.Error("Failed to marshal leaderboard for cache", zap.Error(err))
		return
	}
	err = c.redis.SetIfGeneration(ctx, genKey, gen, key, data, redis.TTLLeaderboard)
	if errors.Is(err, redis.ErrStaleWrite) {
		c.logger.Debug("Leaderboard invalidated during load, not caching")
	} else if err != nil {
		c.logger.Warn("Failed to cache leaderboard", zap.Error(err))
	}
}

// InvalidateLeaderboard drops every cached leaderboard page of a guild in the background
func (c *CacheService) InvalidateLeaderboard(guildID string) {
	if !c.enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.InvalidateLeaderboardSync(ctx, guildID); err != nil {
			c.logger.Warn("Failed to invalidate leaderboard cache",
				zap.String("guild_id", guildID),
				zap.Error(err))
		}
	}()
}

// InvalidateLeaderboardSync drops every cached leaderboard page of a guild
func (c *CacheService) InvalidateLeaderboardSync(ctx context.Context, guildID string) error {
	if !c.enabled() {
		return nil
	}
	if err := c.redis.BumpGeneration(ctx, c.redis.KeyBuilder.KeyLeaderboardGen(guildID)); err != nil {
		return err
	}
	return c.redis.InvalidatePattern(ctx, c.redis.KeyBuilder.KeyLeaderboardPattern(guildID))
}

func decodeTally(duelID uuid.UUID, fields map[string]string) (*domain.Tally, bool) {
	tally := &domain.Tally{DuelID: duelID, Counts: make(map[uuid.UUID]int, len(fields))}
	for field, raw := range fields {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, false
		}
		if field == totalField {
			tally.Total = n
			continue
		}
		id, err := uuid.Parse(field)
		if err != nil {
			return nil, false
		}
		tally.Counts[id] = n
	}
	return tally, true
}
