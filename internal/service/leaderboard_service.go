package service

import (
	"context"

	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/repository"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardService ranks a guild's active competitors
type LeaderboardService struct {
	repos  *repository.Repositories
	cache  *CacheService
	logger *zap.Logger
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(repos *repository.Repositories, cache *CacheService, logger *zap.Logger) *LeaderboardService {
	return &LeaderboardService{repos: repos, cache: cache, logger: logger}
}

// Top returns up to limit non-retired competitors ordered by rating
func (s *LeaderboardService) Top(ctx context.Context, guildID string, limit int) ([]domain.Competitor, error) {
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}
	return s.cache.GetLeaderboard(ctx, guildID, limit, func(ctx context.Context) ([]domain.Competitor, error) {
		return s.repos.Competitors.Leaderboard(ctx, guildID, limit)
	})
}
