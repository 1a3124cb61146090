package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imageduel/internal/domain"
)

type duelRepository struct {
	db *gorm.DB
}

// NewDuelRepository creates a gorm-backed duel repository
func NewDuelRepository(db *gorm.DB) DuelRepository {
	return &duelRepository{db: db}
}

func (r *duelRepository) Create(ctx context.Context, d *domain.Duel) error {
	if d.Outcome == "" {
		d.Outcome = domain.DuelOutcomePending
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to create duel: %w", err)
	}
	return nil
}

func (r *duelRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Duel, error) {
	var d domain.Duel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get duel: %w", err)
	}
	return &d, nil
}

func (r *duelRepository) MarkResolved(ctx context.Context, d *domain.Duel) (bool, error) {
	var winner interface{}
	if d.WinnerID != nil {
		winner = *d.WinnerID
	}
	res := r.db.WithContext(ctx).
		Model(&domain.Duel{}).
		Where("id = ? AND ended_at IS NULL", d.ID).
		Updates(map[string]interface{}{
			"ended_at":  d.EndedAt,
			"winner_id": winner,
			"votes_a":   d.VotesA,
			"votes_b":   d.VotesB,
			"outcome":   d.Outcome,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark duel resolved: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *duelRepository) RecentPairs(ctx context.Context, guildID string, limit int) ([][2]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []domain.Duel
	err := r.db.WithContext(ctx).
		Select("competitor_a_id", "competitor_b_id").
		Where("guild_id = ? AND ended_at IS NOT NULL", guildID).
		Order("ended_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent pairs: %w", err)
	}
	pairs := make([][2]uuid.UUID, 0, len(rows))
	for _, d := range rows {
		pairs = append(pairs, [2]uuid.UUID{d.CompetitorAID, d.CompetitorBID})
	}
	return pairs, nil
}

func (r *duelRepository) ListIDsByCompetitor(ctx context.Context, competitorID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&domain.Duel{}).
		Where("competitor_a_id = ? OR competitor_b_id = ?", competitorID, competitorID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list duels for competitor: %w", err)
	}
	return ids, nil
}

func (r *duelRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Duel{}).Error; err != nil {
		return fmt.Errorf("failed to delete duels: %w", err)
	}
	return nil
}
