// Package matchup picks the two competitors of the next duel.
package matchup

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	apperrors "imageduel/pkg/errors"
)

// DefaultRecentExclusion is how many concluded duels count as recently matched
const DefaultRecentExclusion = 5

// BalanceBands are the rating-difference tolerances tried in order
var BalanceBands = []int{100, 200, 300, 500, 1000}

// Store is the read side the selector needs
type Store interface {
	ListEligible(ctx context.Context, guildID string) ([]domain.Competitor, error)
	RecentPairs(ctx context.Context, guildID string, limit int) ([][2]uuid.UUID, error)
}

// Options tunes one selection
type Options struct {
	RecentExclusion int
	// Balanced enables the rating-band search and the wildcard roll
	Balanced       bool
	WildcardChance float64
}

// OptionsFromConfig derives selection options from a guild's configuration
func OptionsFromConfig(cfg *domain.GuildConfig) Options {
	return Options{
		RecentExclusion: cfg.RecentExclusion,
		Balanced:        cfg.ResolutionMode == domain.ResolutionBonus,
		WildcardChance:  cfg.WildcardChance,
	}
}

// Pair is a selected matchup
type Pair struct {
	A        domain.Competitor
	B        domain.Competitor
	Wildcard bool
}

// Selector chooses matchups
type Selector struct {
	store  Store
	logger *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector creates a selector. A nil rnd seeds a fresh PCG source.
func NewSelector(store Store, rnd *rand.Rand, logger *zap.Logger) *Selector {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{store: store, rnd: rnd, logger: logger}
}

// Select returns two distinct non-retired competitors of the guild
func (s *Selector) Select(ctx context.Context, guildID string, opts Options) (*Pair, error) {
	pool, err := s.store.ListEligible(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible competitors: %w", err)
	}
	if len(pool) < 2 {
		return nil, apperrors.NewInsufficientPoolError(guildID, len(pool))
	}

	limit := opts.RecentExclusion
	if limit < 0 {
		limit = DefaultRecentExclusion
	}
	recent := make(map[pairKey]struct{})
	if limit > 0 {
		pairs, err := s.store.RecentPairs(ctx, guildID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent pairs: %w", err)
		}
		for _, p := range pairs {
			recent[keyOf(p[0], p[1])] = struct{}{}
		}
	}

	wildcard := false
	s.mu.Lock()
	s.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if opts.Balanced && opts.WildcardChance > 0 {
		wildcard = s.rnd.Float64() < opts.WildcardChance
	}
	s.mu.Unlock()

	if opts.Balanced && !wildcard {
		for _, band := range BalanceBands {
			if a, b, ok := firstPair(pool, recent, func(a, b *domain.Competitor) bool {
				return a.SubmitterID != b.SubmitterID && abs(a.Rating-b.Rating) <= band
			}); ok {
				s.logger.Debug("Balanced matchup selected",
					zap.String("guild_id", guildID),
					zap.Int("band", band),
					zap.Int("pool", len(pool)))
				return &Pair{A: *a, B: *b}, nil
			}
		}
	}

	if a, b, ok := firstPair(pool, recent, nil); ok {
		return &Pair{A: *a, B: *b, Wildcard: wildcard}, nil
	}

	s.logger.Debug("Every pair matched recently, repeating a matchup",
		zap.String("guild_id", guildID),
		zap.Int("pool", len(pool)))
	return &Pair{A: pool[0], B: pool[1], Wildcard: wildcard}, nil
}

// firstPair scans unordered pairs in pool order and returns the first one
// that was not matched recently and passes accept.
func firstPair(pool []domain.Competitor, recent map[pairKey]struct{}, accept func(a, b *domain.Competitor) bool) (*domain.Competitor, *domain.Competitor, bool) {
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			a, b := &pool[i], &pool[j]
			if _, seen := recent[keyOf(a.ID, b.ID)]; seen {
				continue
			}
			if accept != nil && !accept(a, b) {
				continue
			}
			return a, b, true
		}
	}
	return nil, nil, false
}

type pairKey [2]uuid.UUID

// keyOf is order-independent
func keyOf(a, b uuid.UUID) pairKey {
	if a.String() > b.String() {
		a, b = b, a
	}
	return pairKey{a, b}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
