package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imageduel/internal/domain"
)

// tunableColumns are the columns an admin may change. Lifecycle columns are
// owned by the lifecycle manager and written through UpdateState.
var tunableColumns = []string{
	"channel_id",
	"duel_duration_seconds",
	"cooldown_seconds",
	"starting_rating",
	"k_factor",
	"streak_bonus_2",
	"streak_bonus_3",
	"upset_bonus",
	"wildcard_chance",
	"min_votes",
	"recent_exclusion",
	"resolution_mode",
	"retirement_mode",
	"retire_after_losses",
	"retire_below_rating",
	"updated_at",
}

type guildConfigRepository struct {
	db *gorm.DB
}

// NewGuildConfigRepository creates a gorm-backed guild config repository
func NewGuildConfigRepository(db *gorm.DB) GuildConfigRepository {
	return &guildConfigRepository{db: db}
}

func (r *guildConfigRepository) Get(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	var cfg domain.GuildConfig
	err := r.db.WithContext(ctx).Where("guild_id = ?", guildID).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild config: %w", err)
	}
	return &cfg, nil
}

func (r *guildConfigRepository) Upsert(ctx context.Context, cfg *domain.GuildConfig) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns(tunableColumns),
		}).
		Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert guild config: %w", err)
	}
	return nil
}

func (r *guildConfigRepository) ListConfigured(ctx context.Context) ([]domain.GuildConfig, error) {
	var rows []domain.GuildConfig
	err := r.db.WithContext(ctx).
		Where("channel_id <> ?", "").
		Order("guild_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list guild configs: %w", err)
	}
	return rows, nil
}

func (r *guildConfigRepository) UpdateState(ctx context.Context, guildID string, update StateUpdate) error {
	values := make(map[string]interface{}, 3)
	if update.IsActive != nil {
		values["is_active"] = *update.IsActive
	}
	if update.IsPaused != nil {
		values["is_paused"] = *update.IsPaused
	}
	switch {
	case update.ClearNextDuel:
		values["next_duel_at"] = nil
	case update.NextDuelAt != nil:
		values["next_duel_at"] = *update.NextDuelAt
	}
	if len(values) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&domain.GuildConfig{}).
		Where("guild_id = ?", guildID).
		Updates(values).Error
	if err != nil {
		return fmt.Errorf("failed to update guild state: %w", err)
	}
	return nil
}
