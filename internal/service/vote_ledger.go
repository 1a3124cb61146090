package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/repository"
	apperrors "imageduel/pkg/errors"
)

// VoteLedger enforces one current vote per voter per duel
type VoteLedger struct {
	repos  *repository.Repositories
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
}

// NewVoteLedger creates a new vote ledger
func NewVoteLedger(repos *repository.Repositories, cache *CacheService, logger *zap.Logger) *VoteLedger {
	return &VoteLedger{
		repos:  repos,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CastOrChangeVote records the voter's choice. Re-selecting the current choice
// returns a duplicate vote error and leaves the ledger untouched.
func (l *VoteLedger) CastOrChangeVote(ctx context.Context, duelID uuid.UUID, voterID string, competitorID uuid.UUID) (domain.VoteOutcome, error) {
	if voterID == "" {
		return "", apperrors.NewValidationError("voter_id is required", nil)
	}

	duel, err := l.repos.Duels.GetByID(ctx, duelID)
	if err != nil {
		return "", err
	}
	if duel == nil || duel.IsResolved() {
		return "", apperrors.NewInvalidTargetError("This duel is no longer active")
	}
	if !duel.Involves(competitorID) {
		return "", apperrors.NewInvalidTargetError("That image is not part of this duel")
	}

	outcome, err := l.apply(ctx, duelID, voterID, competitorID)
	if err != nil {
		return "", err
	}

	l.cache.InvalidateLiveTally(ctx, duelID)

	l.logger.Debug("Vote recorded",
		zap.String("duel_id", duelID.String()),
		zap.String("competitor_id", competitorID.String()),
		zap.String("outcome", string(outcome)))

	return outcome, nil
}

func (l *VoteLedger) apply(ctx context.Context, duelID uuid.UUID, voterID string, competitorID uuid.UUID) (domain.VoteOutcome, error) {
	existing, err := l.repos.Votes.Get(ctx, duelID, voterID)
	if err != nil {
		return "", err
	}

	if existing == nil {
		err := l.repos.Votes.Create(ctx, &domain.Vote{
			DuelID:       duelID,
			VoterID:      voterID,
			CompetitorID: competitorID,
			VotedAt:      l.now(),
		})
		if err == nil {
			return domain.VoteCast, nil
		}
		if !repository.IsUniqueViolation(err) {
			return "", err
		}

		// A concurrent first vote by the same voter landed first
		existing, err = l.repos.Votes.Get(ctx, duelID, voterID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", fmt.Errorf("vote vanished after unique violation")
		}
	}

	if existing.CompetitorID == competitorID {
		return "", apperrors.NewDuplicateVoteError()
	}

	if err := l.repos.Votes.UpdateChoice(ctx, duelID, voterID, competitorID, l.now()); err != nil {
		return "", err
	}
	return domain.VoteChanged, nil
}

// Tally returns the persisted per-competitor counts of a duel
func (l *VoteLedger) Tally(ctx context.Context, duelID uuid.UUID) (*domain.Tally, error) {
	counts, err := l.repos.Votes.CountByDuel(ctx, duelID)
	if err != nil {
		return nil, err
	}
	tally := &domain.Tally{DuelID: duelID, Counts: counts}
	for _, n := range counts {
		tally.Total += n
	}
	return tally, nil
}

// LiveTally returns the tally for display, served from cache when possible
func (l *VoteLedger) LiveTally(ctx context.Context, duelID uuid.UUID) (*domain.Tally, error) {
	return l.cache.GetLiveTally(ctx, duelID, func(ctx context.Context) (*domain.Tally, error) {
		return l.Tally(ctx, duelID)
	})
}
