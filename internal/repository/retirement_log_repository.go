package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imageduel/internal/domain"
)

type retirementLogRepository struct {
	db *gorm.DB
}

// NewRetirementLogRepository creates a gorm-backed retirement log repository
func NewRetirementLogRepository(db *gorm.DB) RetirementLogRepository {
	return &retirementLogRepository{db: db}
}

func (r *retirementLogRepository) Create(ctx context.Context, entry *domain.RetirementLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record retirement: %w", err)
	}
	return nil
}

func (r *retirementLogRepository) ListByGuild(ctx context.Context, guildID string, limit int) ([]domain.RetirementLog, error) {
	var rows []domain.RetirementLog
	q := r.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list retirements: %w", err)
	}
	return rows, nil
}

func (r *retirementLogRepository) DeleteByCompetitor(ctx context.Context, competitorID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("competitor_id = ?", competitorID).
		Delete(&domain.RetirementLog{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete retirement log: %w", err)
	}
	return nil
}
