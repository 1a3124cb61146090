package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/domain"
	"imageduel/internal/repository"
	"imageduel/internal/retirement"
	apperrors "imageduel/pkg/errors"
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImportRequest is a new competitor submission
type ImportRequest struct {
	GuildID     string
	SubmitterID string
	Title       string
	ContentType string
	Body        io.Reader
}

// CompetitorService manages the competitor pool on behalf of admins
type CompetitorService struct {
	repos  *repository.Repositories
	images ImageStore
	cache  *CacheService
	locker *CommunityLocker
	logger *zap.Logger
	now    func() time.Time
}

// NewCompetitorService creates a new competitor service. images may be nil,
// in which case imports are refused.
func NewCompetitorService(repos *repository.Repositories, images ImageStore, cache *CacheService, locker *CommunityLocker, logger *zap.Logger) *CompetitorService {
	return &CompetitorService{
		repos:  repos,
		images: images,
		cache:  cache,
		locker: locker,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Import uploads the image and adds the competitor with the guild's starting rating
func (s *CompetitorService) Import(ctx context.Context, req ImportRequest) (*domain.Competitor, error) {
	if req.GuildID == "" || req.SubmitterID == "" {
		return nil, apperrors.NewValidationError("guild_id and submitter_id are required", nil)
	}
	ext, ok := imageExtensions[strings.ToLower(req.ContentType)]
	if !ok {
		return nil, apperrors.NewValidationError("unsupported image type", map[string]interface{}{
			"content_type": req.ContentType,
		})
	}
	if s.images == nil {
		return nil, apperrors.NewCollaboratorUnavailableError("image store", fmt.Errorf("not configured"), false)
	}

	startRating := domain.DefaultRating
	cfg, err := s.repos.GuildConfigs.Get(ctx, req.GuildID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		startRating = cfg.StartingRating
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s/%s%s", req.GuildID, id, ext)

	if err := s.images.Put(ctx, key, req.Body, req.ContentType); err != nil {
		return nil, apperrors.NewCollaboratorUnavailableError("image store", err, true)
	}

	c := &domain.Competitor{
		ID:          id,
		GuildID:     req.GuildID,
		SubmitterID: req.SubmitterID,
		Title:       req.Title,
		StorageKey:  key,
		Rating:      startRating,
		CreatedAt:   s.now(),
	}
	if err := s.repos.Competitors.Create(ctx, c); err != nil {
		if delErr := s.images.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned image",
				zap.String("storage_key", key),
				zap.Error(delErr))
		}
		return nil, err
	}

	s.cache.InvalidateLeaderboard(req.GuildID)

	s.logger.Info("Competitor imported",
		zap.String("guild_id", req.GuildID),
		zap.String("competitor_id", id.String()),
		zap.Int("rating", startRating))
	return c, nil
}

// List returns the guild's competitors
func (s *CompetitorService) List(ctx context.Context, guildID string, includeRetired bool) ([]domain.Competitor, error) {
	return s.repos.Competitors.List(ctx, guildID, includeRetired)
}

// Retirements returns the most recent retirement log entries of the guild
func (s *CompetitorService) Retirements(ctx context.Context, guildID string, limit int) ([]domain.RetirementLog, error) {
	return s.repos.RetirementLog.ListByGuild(ctx, guildID, limit)
}

// Retire withdraws a competitor from selection. Only the retirement fields
// are written, so a concurrent resolution keeps its rating change.
func (s *CompetitorService) Retire(ctx context.Context, guildID string, id uuid.UUID) (*domain.Competitor, error) {
	unlock, err := s.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var c *domain.Competitor
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		if c, err = s.getForUpdate(ctx, tx, guildID, id); err != nil {
			return err
		}
		if c.Retired {
			return nil
		}
		now := s.now()
		if err := tx.Competitors.SetRetirement(ctx, guildID, id, &now); err != nil {
			return err
		}
		c.Retire(now)
		return tx.RetirementLog.Create(ctx, &domain.RetirementLog{
			GuildID:      guildID,
			CompetitorID: id,
			Reason:       string(retirement.ReasonManual),
			Losses:       c.Losses,
			Rating:       c.Rating,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateLeaderboard(guildID)
	s.logger.Info("Competitor retired", zap.String("guild_id", guildID), zap.String("competitor_id", id.String()))
	return c, nil
}

// Unretire returns a competitor to the pool, clearing the flag and timestamp
func (s *CompetitorService) Unretire(ctx context.Context, guildID string, id uuid.UUID) (*domain.Competitor, error) {
	unlock, err := s.locker.Lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var c *domain.Competitor
	changed := false
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		if c, err = s.getForUpdate(ctx, tx, guildID, id); err != nil {
			return err
		}
		if !c.Retired {
			return nil
		}
		if err := tx.Competitors.SetRetirement(ctx, guildID, id, nil); err != nil {
			return err
		}
		c.Unretire()
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return c, nil
	}

	s.cache.InvalidateLeaderboard(guildID)
	s.logger.Info("Competitor unretired", zap.String("guild_id", guildID), zap.String("competitor_id", id.String()))
	return c, nil
}

// Delete removes a competitor with its votes, duel history and retirement log,
// then its stored image. A competitor in the open window cannot be deleted.
func (s *CompetitorService) Delete(ctx context.Context, guildID string, id uuid.UUID) error {
	unlock, err := s.locker.Lock(ctx, guildID)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.get(ctx, s.repos, guildID, id)
	if err != nil {
		return err
	}
	active, err := s.repos.ActiveDuels.Get(ctx, guildID)
	if err != nil {
		return err
	}
	if active != nil && (active.CompetitorAID == id || active.CompetitorBID == id) {
		return apperrors.NewConflictError("competitor is in the running duel")
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		duelIDs, err := tx.Duels.ListIDsByCompetitor(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Votes.DeleteByDuels(ctx, duelIDs); err != nil {
			return err
		}
		if err := tx.Duels.DeleteByIDs(ctx, duelIDs); err != nil {
			return err
		}
		if err := tx.RetirementLog.DeleteByCompetitor(ctx, id); err != nil {
			return err
		}
		return tx.Competitors.Delete(ctx, guildID, id)
	})
	if err != nil {
		return err
	}

	if s.images != nil {
		if err := s.images.Delete(ctx, c.StorageKey); err != nil {
			s.logger.Warn("Failed to delete competitor image",
				zap.String("guild_id", guildID),
				zap.String("storage_key", c.StorageKey),
				zap.Error(err))
		}
	}

	s.cache.InvalidateLeaderboard(guildID)
	s.logger.Info("Competitor deleted", zap.String("guild_id", guildID), zap.String("competitor_id", id.String()))
	return nil
}

// ImageURL returns the public URL of the competitor's image
func (s *CompetitorService) ImageURL(c *domain.Competitor) string {
	if s.images == nil || c == nil {
		return ""
	}
	return s.images.URL(c.StorageKey)
}

// getForUpdate loads the competitor with a row lock inside tx
func (s *CompetitorService) getForUpdate(ctx context.Context, tx *repository.Repositories, guildID string, id uuid.UUID) (*domain.Competitor, error) {
	rows, err := tx.Competitors.GetForUpdate(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NewNotFoundError("competitor not found")
	}
	return &rows[0], nil
}

func (s *CompetitorService) get(ctx context.Context, repos *repository.Repositories, guildID string, id uuid.UUID) (*domain.Competitor, error) {
	c, err := repos.Competitors.GetByID(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.NewNotFoundError("competitor not found")
	}
	return c, nil
}
