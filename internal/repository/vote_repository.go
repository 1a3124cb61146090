package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imageduel/internal/domain"
)

type voteRepository struct {
	db *gorm.DB
}

// NewVoteRepository creates a gorm-backed vote repository
func NewVoteRepository(db *gorm.DB) VoteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Get(ctx context.Context, duelID uuid.UUID, voterID string) (*domain.Vote, error) {
	var v domain.Vote
	err := r.db.WithContext(ctx).
		Where("duel_id = ? AND voter_id = ?", duelID, voterID).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return &v, nil
}

func (r *voteRepository) Create(ctx context.Context, v *domain.Vote) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("failed to create vote: %w", err)
	}
	return nil
}

func (r *voteRepository) UpdateChoice(ctx context.Context, duelID uuid.UUID, voterID string, competitorID uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("duel_id = ? AND voter_id = ?", duelID, voterID).
		Updates(map[string]interface{}{
			"competitor_id": competitorID,
			"voted_at":      at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	return nil
}

func (r *voteRepository) ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.Vote, error) {
	var votes []domain.Vote
	err := r.db.WithContext(ctx).
		Where("duel_id = ?", duelID).
		Order("voted_at").
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}

func (r *voteRepository) CountByDuel(ctx context.Context, duelID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		CompetitorID uuid.UUID
		Total        int
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Vote{}).
		Select("competitor_id, COUNT(*) AS total").
		Where("duel_id = ?", duelID).
		Group("competitor_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.CompetitorID] = row.Total
	}
	return counts, nil
}

func (r *voteRepository) DeleteByDuels(ctx context.Context, duelIDs []uuid.UUID) error {
	if len(duelIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("duel_id IN ?", duelIDs).Delete(&domain.Vote{}).Error; err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	return nil
}
