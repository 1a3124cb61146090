package matchup

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	apperrors "imageduel/pkg/errors"
)

type memoryStore struct {
	pool   []domain.Competitor
	recent [][2]uuid.UUID
}

func (m *memoryStore) ListEligible(_ context.Context, _ string) ([]domain.Competitor, error) {
	out := make([]domain.Competitor, 0, len(m.pool))
	for _, c := range m.pool {
		if !c.Retired {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryStore) RecentPairs(_ context.Context, _ string, limit int) ([][2]uuid.UUID, error) {
	if limit < len(m.recent) {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

func competitor(submitter string, rating int) domain.Competitor {
	return domain.Competitor{ID: uuid.New(), GuildID: "g1", SubmitterID: submitter, Rating: rating}
}

func newTestSelector(store Store, seed uint64) *Selector {
	return NewSelector(store, rand.New(rand.NewPCG(seed, seed+1)), zap.NewNop())
}

func ids(p *Pair) []uuid.UUID {
	return []uuid.UUID{p.A.ID, p.B.ID}
}

func TestSelect_InsufficientPool(t *testing.T) {
	retired := competitor("u2", 1000)
	retired.Retired = true

	tests := []struct {
		name string
		pool []domain.Competitor
	}{
		{name: "empty pool", pool: nil},
		{name: "single competitor", pool: []domain.Competitor{competitor("u1", 1000)}},
		{name: "second competitor retired", pool: []domain.Competitor{competitor("u1", 1000), retired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSelector(&memoryStore{pool: tt.pool}, 1)
			pair, err := s.Select(context.Background(), "g1", Options{RecentExclusion: 5})
			assert.Nil(t, pair)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInsufficientPool))
		})
	}
}

func TestSelect_SkipsRecentPairs(t *testing.T) {
	a, b, c := competitor("u1", 1000), competitor("u2", 1000), competitor("u3", 1000)
	store := &memoryStore{
		pool:   []domain.Competitor{a, b, c},
		recent: [][2]uuid.UUID{{a.ID, b.ID}, {c.ID, a.ID}},
	}

	for seed := uint64(0); seed < 20; seed++ {
		pair, err := newTestSelector(store, seed).Select(context.Background(), "g1", Options{RecentExclusion: 5})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{b.ID, c.ID}, ids(pair))
		assert.False(t, pair.Wildcard)
	}
}

func TestSelect_FallsBackWhenEverythingIsRecent(t *testing.T) {
	a, b := competitor("u1", 1000), competitor("u2", 1000)
	store := &memoryStore{
		pool:   []domain.Competitor{a, b},
		recent: [][2]uuid.UUID{{a.ID, b.ID}},
	}

	pair, err := newTestSelector(store, 7).Select(context.Background(), "g1", Options{RecentExclusion: 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids(pair))
}

func TestSelect_RecentExclusionDisabled(t *testing.T) {
	a, b := competitor("u1", 1000), competitor("u2", 1000)
	store := &memoryStore{
		pool:   []domain.Competitor{a, b},
		recent: [][2]uuid.UUID{{a.ID, b.ID}},
	}

	pair, err := newTestSelector(store, 3).Select(context.Background(), "g1", Options{RecentExclusion: 0})
	require.NoError(t, err)
	assert.NotEqual(t, pair.A.ID, pair.B.ID)
}

func TestSelect_BalancedPrefersCloseRatingsAndDifferentSubmitters(t *testing.T) {
	a := competitor("u1", 1000)
	b := competitor("u1", 1050)
	c := competitor("u2", 1500)
	d := competitor("u2", 1080)
	store := &memoryStore{pool: []domain.Competitor{a, b, c, d}}

	for seed := uint64(0); seed < 30; seed++ {
		pair, err := newTestSelector(store, seed).Select(context.Background(), "g1", Options{
			RecentExclusion: 5,
			Balanced:        true,
			WildcardChance:  0,
		})
		require.NoError(t, err)
		assert.Contains(t, ids(pair), d.ID)
		assert.NotEqual(t, pair.A.SubmitterID, pair.B.SubmitterID)
		assert.LessOrEqual(t, abs(pair.A.Rating-pair.B.Rating), 100)
		assert.False(t, pair.Wildcard)
	}
}

func TestSelect_BalancedWidensBands(t *testing.T) {
	a := competitor("u1", 1000)
	b := competitor("u2", 1400)
	store := &memoryStore{pool: []domain.Competitor{a, b}}

	pair, err := newTestSelector(store, 5).Select(context.Background(), "g1", Options{Balanced: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids(pair))
	assert.False(t, pair.Wildcard)
}

func TestSelect_WildcardRoll(t *testing.T) {
	store := &memoryStore{pool: []domain.Competitor{competitor("u1", 1000), competitor("u1", 2400)}}

	pair, err := newTestSelector(store, 11).Select(context.Background(), "g1", Options{Balanced: true, WildcardChance: 1})
	require.NoError(t, err)
	assert.True(t, pair.Wildcard)

	pair, err = newTestSelector(store, 11).Select(context.Background(), "g1", Options{Balanced: false, WildcardChance: 1})
	require.NoError(t, err)
	assert.False(t, pair.Wildcard)
}

func TestKeyOf_Unordered(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, keyOf(a, b), keyOf(b, a))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := domain.DefaultGuildConfig("g1", domain.ResolutionSimple)
	opts := OptionsFromConfig(cfg)
	assert.False(t, opts.Balanced)
	assert.Equal(t, 5, opts.RecentExclusion)

	cfg.ResolutionMode = domain.ResolutionBonus
	assert.True(t, OptionsFromConfig(cfg).Balanced)
}
