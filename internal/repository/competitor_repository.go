package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imageduel/internal/domain"
)

type competitorRepository struct {
	db *gorm.DB
}

// NewCompetitorRepository creates a gorm-backed competitor repository
func NewCompetitorRepository(db *gorm.DB) CompetitorRepository {
	return &competitorRepository{db: db}
}

func (r *competitorRepository) Create(ctx context.Context, c *domain.Competitor) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create competitor: %w", err)
	}
	return nil
}

func (r *competitorRepository) GetByID(ctx context.Context, guildID string, id uuid.UUID) (*domain.Competitor, error) {
	var c domain.Competitor
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND id = ?", guildID, id).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get competitor: %w", err)
	}
	return &c, nil
}

func (r *competitorRepository) GetForUpdate(ctx context.Context, guildID string, ids ...uuid.UUID) ([]domain.Competitor, error) {
	var rows []domain.Competitor
	q := r.db.WithContext(ctx).Where("guild_id = ? AND id IN ?", guildID, ids)
	// SQLite has no row locks; its single writer already serializes the transaction.
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock competitors: %w", err)
	}
	return rows, nil
}

func (r *competitorRepository) ListEligible(ctx context.Context, guildID string) ([]domain.Competitor, error) {
	var rows []domain.Competitor
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND retired = ?", guildID, false).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible competitors: %w", err)
	}
	return rows, nil
}

func (r *competitorRepository) List(ctx context.Context, guildID string, includeRetired bool) ([]domain.Competitor, error) {
	var rows []domain.Competitor
	q := r.db.WithContext(ctx).Where("guild_id = ?", guildID)
	if !includeRetired {
		q = q.Where("retired = ?", false)
	}
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	return rows, nil
}

func (r *competitorRepository) Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.Competitor, error) {
	var rows []domain.Competitor
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND retired = ?", guildID, false).
		Order("rating DESC").
		Order("wins DESC").
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return rows, nil
}

func (r *competitorRepository) SaveStats(ctx context.Context, c *domain.Competitor) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Competitor{}).
		Where("guild_id = ? AND id = ?", c.GuildID, c.ID).
		Updates(map[string]interface{}{
			"rating":         c.Rating,
			"wins":           c.Wins,
			"losses":         c.Losses,
			"current_streak": c.CurrentStreak,
			"best_streak":    c.BestStreak,
			"total_votes":    c.TotalVotes,
			"retired":        c.Retired,
			"retired_at":     c.RetiredAt,
			"last_duel_at":   c.LastDuelAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save competitor stats: %w", err)
	}
	return nil
}

func (r *competitorRepository) SetRetirement(ctx context.Context, guildID string, id uuid.UUID, retiredAt *time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Competitor{}).
		Where("guild_id = ? AND id = ?", guildID, id).
		Updates(map[string]interface{}{
			"retired":    retiredAt != nil,
			"retired_at": retiredAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set competitor retirement: %w", err)
	}
	return nil
}

func (r *competitorRepository) Delete(ctx context.Context, guildID string, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND id = ?", guildID, id).
		Delete(&domain.Competitor{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete competitor: %w", err)
	}
	return nil
}
