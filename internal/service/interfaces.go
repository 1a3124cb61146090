package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"imageduel/internal/domain"
)

// DuelAnnouncement is emitted when a voting window opens
type DuelAnnouncement struct {
	GuildID     string
	ChannelID   string
	DuelID      uuid.UUID
	CompetitorA domain.Competitor
	CompetitorB domain.Competitor
	ImageURLA   string
	ImageURLB   string
	EndsAt      time.Time
	IsWildcard  bool
}

// ResolutionAnnouncement is emitted after a window has been resolved
type ResolutionAnnouncement struct {
	GuildID   string
	ChannelID string
	// Previous is the message that carried the vote controls, if it was posted
	Previous    *domain.MessageRef
	Result      *domain.ResolutionResult
	CompetitorA *domain.Competitor
	CompetitorB *domain.Competitor
}

// Presenter is the chat-facing side of the duel cycle. Failures are logged by
// the caller and never abort a transition.
type Presenter interface {
	// DuelOpened posts the duel and returns where it was posted
	DuelOpened(ctx context.Context, a DuelAnnouncement) (*domain.MessageRef, error)

	// DuelResolved posts the result and clears the previous vote controls
	DuelResolved(ctx context.Context, a ResolutionAnnouncement) error
}

// NopPresenter drops every announcement
type NopPresenter struct{}

func (NopPresenter) DuelOpened(context.Context, DuelAnnouncement) (*domain.MessageRef, error) {
	return nil, nil
}

func (NopPresenter) DuelResolved(context.Context, ResolutionAnnouncement) error { return nil }

// ImageStore holds the competitor images
type ImageStore interface {
	// Put uploads an object under key
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Delete removes the object; deleting a missing object is not an error
	Delete(ctx context.Context, key string) error

	// URL returns the public URL of the object
	URL(key string) string
}

// Services aggregates the application services
type Services struct {
	Lifecycle   *LifecycleManager
	Ledger      *VoteLedger
	Resolver    *DuelResolver
	Leaderboard *LeaderboardService
	Competitors *CompetitorService
	Config      *ConfigService
	Cache       *CacheService
	Scheduler   *DuelScheduler
	Locker      *CommunityLocker
}
