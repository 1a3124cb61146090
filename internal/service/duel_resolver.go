package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/rating"
	"imageduel/internal/repository"
	"imageduel/internal/retirement"
	apperrors "imageduel/pkg/errors"
)

var errAlreadyResolved = errors.New("duel already resolved")

// ResolveRequest identifies the window to resolve and the configuration in force
type ResolveRequest struct {
	GuildID     string
	DuelID      uuid.UUID
	CompetitorA uuid.UUID
	CompetitorB uuid.UUID
	Config      *domain.GuildConfig
}

// DuelResolver closes a voting window and applies its result
type DuelResolver struct {
	repos  *repository.Repositories
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
}

// NewDuelResolver creates a new duel resolver
func NewDuelResolver(repos *repository.Repositories, cache *CacheService, logger *zap.Logger) *DuelResolver {
	return &DuelResolver{
		repos:  repos,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve tallies the ledger, updates ratings and retirement, and ends the duel.
// Resolving a duel that already ended returns a result with AlreadyResolved set
// and changes nothing.
func (r *DuelResolver) Resolve(ctx context.Context, req ResolveRequest) (*domain.ResolutionResult, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = domain.DefaultGuildConfig(req.GuildID, "")
	}

	var result *domain.ResolutionResult
	err := r.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		result, err = r.resolveTx(ctx, tx, req, cfg)
		return err
	})
	if errors.Is(err, errAlreadyResolved) {
		r.logger.Debug("Duel already resolved, skipping",
			zap.String("guild_id", req.GuildID),
			zap.String("duel_id", req.DuelID.String()))
		return &domain.ResolutionResult{GuildID: req.GuildID, DuelID: req.DuelID, AlreadyResolved: true}, nil
	}
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeInvariant) {
			r.logger.Error("Duel resolution aborted",
				zap.String("guild_id", req.GuildID),
				zap.String("duel_id", req.DuelID.String()),
				zap.Error(err))
		}
		return nil, err
	}

	r.cache.InvalidateLiveTally(ctx, req.DuelID)
	if err := r.cache.InvalidateLeaderboardSync(ctx, req.GuildID); err != nil {
		r.logger.Warn("Failed to invalidate leaderboard cache",
			zap.String("guild_id", req.GuildID),
			zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("guild_id", req.GuildID),
		zap.String("duel_id", req.DuelID.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("total_votes", result.TotalVotes),
	}
	if result.Outcome == domain.DuelOutcomeDecided {
		fields = append(fields,
			zap.String("winner_id", result.WinnerID.String()),
			zap.Int("winner_delta", result.WinnerDelta),
			zap.Int("loser_delta", result.LoserDelta),
			zap.Bool("retired", result.Retired))
	} else {
		fields = append(fields, zap.String("void_reason", result.VoidReason))
	}
	r.logger.Info("Duel resolved", fields...)

	return result, nil
}

func (r *DuelResolver) resolveTx(ctx context.Context, tx *repository.Repositories, req ResolveRequest, cfg *domain.GuildConfig) (*domain.ResolutionResult, error) {
	duel, err := tx.Duels.GetByID(ctx, req.DuelID)
	if err != nil {
		return nil, err
	}
	if duel == nil {
		return nil, apperrors.NewNotFoundError("duel not found")
	}
	if duel.IsResolved() {
		return nil, errAlreadyResolved
	}
	if duel.GuildID != req.GuildID || !duel.Involves(req.CompetitorA) || !duel.Involves(req.CompetitorB) || req.CompetitorA == req.CompetitorB {
		return nil, apperrors.NewInvariantError("resolve request does not match the duel", map[string]interface{}{
			"duel_id": req.DuelID.String(),
		})
	}

	votes, err := tx.Votes.ListByDuel(ctx, duel.ID)
	if err != nil {
		return nil, err
	}
	tally := domain.NewTally(duel.ID, votes)

	locked, err := tx.Competitors.GetForUpdate(ctx, duel.GuildID, duel.CompetitorAID, duel.CompetitorBID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Competitor, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}
	a, b := byID[duel.CompetitorAID], byID[duel.CompetitorBID]
	if a == nil || b == nil {
		return nil, apperrors.NewInvariantError("duel competitor missing", map[string]interface{}{
			"duel_id": duel.ID.String(),
		})
	}

	now := r.now()
	result := &domain.ResolutionResult{
		GuildID:       duel.GuildID,
		DuelID:        duel.ID,
		CompetitorAID: a.ID,
		CompetitorBID: b.ID,
		VotesA:        tally.For(a.ID),
		VotesB:        tally.For(b.ID),
		TotalVotes:    tally.Total,
		IsWildcard:    duel.IsWildcard,
	}

	winnerID, voidReason := pickWinner(tally)
	if voidReason == "" && !duel.Involves(winnerID) {
		return nil, apperrors.NewInvariantError("winner is not a competitor of the duel", map[string]interface{}{
			"duel_id":   duel.ID.String(),
			"winner_id": winnerID.String(),
		})
	}
	if voidReason == "" {
		voidReason = voidCheck(votes, a, b, cfg)
	}

	duel.EndedAt = &now
	duel.VotesA = result.VotesA
	duel.VotesB = result.VotesB

	if voidReason != "" {
		result.Skipped = true
		result.VoidReason = voidReason
		result.Outcome = domain.DuelOutcomeSkipped
		if voidReason == domain.VoidUploaderOnly || voidReason == domain.VoidBelowMinimum {
			result.Outcome = domain.DuelOutcomeVoided
		}
		duel.Outcome = result.Outcome

		ok, err := tx.Duels.MarkResolved(ctx, duel)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errAlreadyResolved
		}
		for _, c := range []*domain.Competitor{a, b} {
			c.TotalVotes += tally.For(c.ID)
			c.LastDuelAt = &now
			if err := tx.Competitors.SaveStats(ctx, c); err != nil {
				return nil, err
			}
		}
	} else {
		winner := byID[winnerID]
		loser := byID[duel.Opponent(winnerID)]

		duel.WinnerID = &winner.ID
		duel.Outcome = domain.DuelOutcomeDecided
		ok, err := tx.Duels.MarkResolved(ctx, duel)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errAlreadyResolved
		}

		change := computeRatings(winner, loser, duel.IsWildcard, cfg)
		winner.RecordWin(change.WinnerRating, tally.For(winner.ID), now)
		loser.RecordLoss(change.LoserRating, tally.For(loser.ID), now)

		result.Outcome = domain.DuelOutcomeDecided
		result.WinnerID = winner.ID
		result.LoserID = loser.ID
		result.WinnerVotes = tally.For(winner.ID)
		result.LoserVotes = tally.For(loser.ID)
		result.WinnerRating = change.WinnerRating
		result.LoserRating = change.LoserRating
		result.WinnerDelta = change.WinnerDelta
		result.LoserDelta = change.LoserDelta

		if retire, reason := retirement.ShouldRetire(loser, retirement.FromConfig(cfg)); retire {
			loser.Retire(now)
			if err := tx.RetirementLog.Create(ctx, &domain.RetirementLog{
				GuildID:      loser.GuildID,
				CompetitorID: loser.ID,
				Reason:       string(reason),
				Losses:       loser.Losses,
				Rating:       loser.Rating,
				CreatedAt:    now,
			}); err != nil {
				return nil, err
			}
			result.Retired = true
			result.RetiredID = loser.ID
		}

		if err := tx.Competitors.SaveStats(ctx, winner); err != nil {
			return nil, err
		}
		if err := tx.Competitors.SaveStats(ctx, loser); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ActiveDuels.Delete(ctx, duel.GuildID, duel.ID); err != nil {
		return nil, err
	}
	return result, nil
}

// pickWinner returns the competitor with the most votes, or a void reason
// when there are no votes or the lead is shared.
func pickWinner(t *domain.Tally) (uuid.UUID, string) {
	if t.Total == 0 {
		return uuid.Nil, domain.VoidNoVotes
	}
	var (
		best uuid.UUID
		top  = -1
		ties int
	)
	for id, n := range t.Counts {
		switch {
		case n > top:
			best, top, ties = id, n, 0
		case n == top:
			ties++
		}
	}
	if ties > 0 {
		return uuid.Nil, domain.VoidTie
	}
	return best, ""
}

// voidCheck applies the uploader-only guard and the minimum-votes threshold
func voidCheck(votes []domain.Vote, a, b *domain.Competitor, cfg *domain.GuildConfig) string {
	uploaderOnly := len(votes) > 0
	for _, v := range votes {
		if v.VoterID != a.SubmitterID && v.VoterID != b.SubmitterID {
			uploaderOnly = false
			break
		}
	}
	if uploaderOnly {
		return domain.VoidUploaderOnly
	}
	if len(votes) < cfg.MinVotes {
		return domain.VoidBelowMinimum
	}
	return ""
}

func computeRatings(winner, loser *domain.Competitor, wildcard bool, cfg *domain.GuildConfig) rating.Result {
	if cfg.ResolutionMode == domain.ResolutionSimple {
		return rating.DuelResult(winner.Rating, loser.Rating, cfg.KFactor)
	}
	return rating.WithBonuses(winner.Rating, loser.Rating, cfg.KFactor, rating.Bonus{
		WinnerStreak: winner.CurrentStreak + 1,
		StreakBonus2: cfg.StreakBonus2,
		StreakBonus3: cfg.StreakBonus3,
		UpsetBonus:   cfg.UpsetBonus,
		Wildcard:     wildcard,
	})
}
