package service

import (
	"context"

	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/repository"
	apperrors "imageduel/pkg/errors"
)

// ConfigService reads and writes guild tunables. Nothing here is cached.
type ConfigService struct {
	repos       *repository.Repositories
	defaultMode domain.ResolutionMode
	logger      *zap.Logger
}

// NewConfigService creates a config service. defaultMode applies to guilds
// configured without an explicit resolution mode.
func NewConfigService(repos *repository.Repositories, defaultMode domain.ResolutionMode, logger *zap.Logger) *ConfigService {
	return &ConfigService{repos: repos, defaultMode: defaultMode, logger: logger}
}

// Get returns the guild's configuration
func (s *ConfigService) Get(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	cfg, err := s.repos.GuildConfigs.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, apperrors.NewConfigMissingError(guildID)
	}
	return cfg, nil
}

// Defaults returns the configuration a new guild starts from
func (s *ConfigService) Defaults(guildID string) *domain.GuildConfig {
	return domain.DefaultGuildConfig(guildID, s.defaultMode)
}

// Upsert validates and stores the tunables. Lifecycle flags are not touched.
func (s *ConfigService) Upsert(ctx context.Context, cfg *domain.GuildConfig) (*domain.GuildConfig, error) {
	if cfg.ResolutionMode == "" {
		cfg.ResolutionMode = s.defaultMode
	}
	if cfg.RetirementMode == "" {
		cfg.RetirementMode = domain.RetirementSmart
	}
	if problems := cfg.Validate(); problems != nil {
		return nil, apperrors.NewValidationError("invalid guild configuration", problems)
	}
	if err := s.repos.GuildConfigs.Upsert(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("Guild configuration updated",
		zap.String("guild_id", cfg.GuildID),
		zap.String("channel_id", cfg.ChannelID),
		zap.String("resolution_mode", string(cfg.ResolutionMode)),
		zap.String("retirement_mode", string(cfg.RetirementMode)))

	return s.Get(ctx, cfg.GuildID)
}
