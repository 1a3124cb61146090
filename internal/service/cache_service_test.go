package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imageduel/internal/domain"
)

func TestCacheService_NilClientPassesThrough(t *testing.T) {
	cache := NewCacheService(nil, zap.NewNop())
	calls := 0

	for i := 0; i < 2; i++ {
		rows, err := cache.GetLeaderboard(context.Background(), "g1", 10, func(context.Context) ([]domain.Competitor, error) {
			calls++
			return []domain.Competitor{{Title: "a"}}, nil
		})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	}
	assert.Equal(t, 2, calls)

	assert.NoError(t, cache.InvalidateLeaderboardSync(context.Background(), "g1"))
	cache.InvalidateLeaderboard("g1")
	cache.InvalidateLiveTally(context.Background(), uuid.New())

	var nilCache *CacheService
	assert.NoError(t, nilCache.InvalidateLeaderboardSync(context.Background(), "g1"))
}

func TestCacheService_LeaderboardCacheAside(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]domain.Competitor, error) {
		calls++
		return []domain.Competitor{{ID: uuid.New(), GuildID: "g1", Rating: 1200}}, nil
	}

	rows, err := env.cache.GetLeaderboard(ctx, "g1", 10, load)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	key := env.redis.KeyBuilder.KeyLeaderboard("g1", 10)
	require.Eventually(t, func() bool { return env.mr.Exists(key) }, time.Second, 5*time.Millisecond)

	cached, err := env.cache.GetLeaderboard(ctx, "g1", 10, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, rows[0].ID, cached[0].ID)
	assert.Equal(t, 1200, cached[0].Rating)

	require.NoError(t, env.cache.InvalidateLeaderboardSync(ctx, "g1"))
	assert.False(t, env.mr.Exists(key))
}

func TestCacheService_InvalidationDuringLoadSkipsWriteBack(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	duelID := uuid.New()
	a := uuid.New()
	tallyKey := env.redis.KeyBuilder.KeyLiveTally(duelID.String())

	// a vote lands while the read is loading the old count
	stale, err := env.cache.GetLiveTally(ctx, duelID, func(ctx context.Context) (*domain.Tally, error) {
		env.cache.InvalidateLiveTally(ctx, duelID)
		return &domain.Tally{DuelID: duelID, Counts: map[uuid.UUID]int{a: 1}, Total: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Total)
	assert.False(t, env.mr.Exists(tallyKey))

	fresh, err := env.cache.GetLiveTally(ctx, duelID, func(context.Context) (*domain.Tally, error) {
		return &domain.Tally{DuelID: duelID, Counts: map[uuid.UUID]int{a: 2}, Total: 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)
	assert.True(t, env.mr.Exists(tallyKey))

	cached, err := env.cache.GetLiveTally(ctx, duelID, func(context.Context) (*domain.Tally, error) {
		return nil, errors.New("loader should not run on a hit")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cached.Counts[a])

	boardKey := env.redis.KeyBuilder.KeyLeaderboard("g1", 10)
	_, err = env.cache.GetLeaderboard(ctx, "g1", 10, func(ctx context.Context) ([]domain.Competitor, error) {
		require.NoError(t, env.cache.InvalidateLeaderboardSync(ctx, "g1"))
		return []domain.Competitor{{Title: "before resolution", Rating: 1000}}, nil
	})
	require.NoError(t, err)
	assert.Never(t, func() bool { return env.mr.Exists(boardKey) }, 100*time.Millisecond, 10*time.Millisecond)

	_, err = env.cache.GetLeaderboard(ctx, "g1", 10, func(context.Context) ([]domain.Competitor, error) {
		return []domain.Competitor{{Title: "after resolution", Rating: 1016}}, nil
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.mr.Exists(boardKey) }, time.Second, 5*time.Millisecond)
}

func TestCacheService_CorruptedLeaderboardFallsBack(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	require.NoError(t, env.mr.Set(env.redis.KeyBuilder.KeyLeaderboard("g1", 5), "{not json"))

	rows, err := env.cache.GetLeaderboard(ctx, "g1", 5, func(context.Context) ([]domain.Competitor, error) {
		return []domain.Competitor{{Title: "fresh"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0].Title)
}

func TestCacheService_LoaderError(t *testing.T) {
	env := newTestEnv(t, true)

	_, err := env.cache.GetLeaderboard(context.Background(), "g1", 5, func(context.Context) ([]domain.Competitor, error) {
		return nil, errors.New("db down")
	})
	assert.ErrorContains(t, err, "db down")

	_, err = env.cache.GetLiveTally(context.Background(), uuid.New(), func(context.Context) (*domain.Tally, error) {
		return nil, errors.New("db down")
	})
	assert.ErrorContains(t, err, "db down")
}

func TestDecodeTally(t *testing.T) {
	duelID := uuid.New()
	a := uuid.New()

	tally, ok := decodeTally(duelID, map[string]string{a.String(): "3", "total": "3"})
	require.True(t, ok)
	assert.Equal(t, 3, tally.For(a))
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, duelID, tally.DuelID)

	_, ok = decodeTally(duelID, map[string]string{a.String(): "three"})
	assert.False(t, ok)
	_, ok = decodeTally(duelID, map[string]string{"not-a-uuid": "1"})
	assert.False(t, ok)
}
