package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imageduel/internal/domain"
)

type activeDuelRepository struct {
	db *gorm.DB
}

// NewActiveDuelRepository creates a gorm-backed active duel repository
func NewActiveDuelRepository(db *gorm.DB) ActiveDuelRepository {
	return &activeDuelRepository{db: db}
}

func (r *activeDuelRepository) Get(ctx context.Context, guildID string) (*domain.ActiveDuel, error) {
	var a domain.ActiveDuel
	err := r.db.WithContext(ctx).Where("guild_id = ?", guildID).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active duel: %w", err)
	}
	return &a, nil
}

func (r *activeDuelRepository) Create(ctx context.Context, a *domain.ActiveDuel) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create active duel: %w", err)
	}
	return nil
}

func (r *activeDuelRepository) SetMessageRef(ctx context.Context, guildID string, ref domain.MessageRef) error {
	err := r.db.WithContext(ctx).
		Model(&domain.ActiveDuel{}).
		Where("guild_id = ?", guildID).
		Updates(map[string]interface{}{
			"channel_id": ref.ChannelID,
			"message_id": ref.MessageID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to set message reference: %w", err)
	}
	return nil
}

func (r *activeDuelRepository) Delete(ctx context.Context, guildID string, duelID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("guild_id = ? AND duel_id = ?", guildID, duelID).
		Delete(&domain.ActiveDuel{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete active duel: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
