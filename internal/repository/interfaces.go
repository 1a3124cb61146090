package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imageduel/internal/domain"
)

// CompetitorRepository defines the interface for competitor data operations
type CompetitorRepository interface {
	// Create inserts a new competitor
	Create(ctx context.Context, c *domain.Competitor) error

	// GetByID returns nil, nil when the competitor does not exist in the guild
	GetByID(ctx context.Context, guildID string, id uuid.UUID) (*domain.Competitor, error)

	// GetForUpdate loads competitors with a row lock inside a transaction
	GetForUpdate(ctx context.Context, guildID string, ids ...uuid.UUID) ([]domain.Competitor, error)

	// ListEligible returns every non-retired competitor of the guild
	ListEligible(ctx context.Context, guildID string) ([]domain.Competitor, error)

	// List returns the guild's competitors, optionally including retired ones
	List(ctx context.Context, guildID string, includeRetired bool) ([]domain.Competitor, error)

	// Leaderboard returns non-retired competitors ranked by rating
	Leaderboard(ctx context.Context, guildID string, limit int) ([]domain.Competitor, error)

	// SaveStats writes the rating, counters and retirement fields
	SaveStats(ctx context.Context, c *domain.Competitor) error

	// SetRetirement writes only the retirement fields. A nil retiredAt
	// returns the competitor to the pool.
	SetRetirement(ctx context.Context, guildID string, id uuid.UUID, retiredAt *time.Time) error

	// Delete removes the competitor row
	Delete(ctx context.Context, guildID string, id uuid.UUID) error
}

// DuelRepository defines the interface for duel history operations
type DuelRepository interface {
	// Create inserts a new open duel
	Create(ctx context.Context, d *domain.Duel) error

	// GetByID returns nil, nil when the duel does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Duel, error)

	// MarkResolved sets the resolution fields only if ended_at is still null.
	// It reports false when another resolution already won the race.
	MarkResolved(ctx context.Context, d *domain.Duel) (bool, error)

	// RecentPairs returns the competitor pairs of the last concluded duels
	RecentPairs(ctx context.Context, guildID string, limit int) ([][2]uuid.UUID, error)

	// ListIDsByCompetitor returns every duel the competitor took part in
	ListIDsByCompetitor(ctx context.Context, competitorID uuid.UUID) ([]uuid.UUID, error)

	// DeleteByIDs removes duels
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}

// ActiveDuelRepository defines the interface for the open-window pointer
type ActiveDuelRepository interface {
	// Get returns nil, nil when no window is open for the guild
	Get(ctx context.Context, guildID string) (*domain.ActiveDuel, error)

	// Create fails with a unique violation if the guild already has an open window
	Create(ctx context.Context, a *domain.ActiveDuel) error

	// SetMessageRef records where the duel was posted
	SetMessageRef(ctx context.Context, guildID string, ref domain.MessageRef) error

	// Delete removes the pointer if it still points at duelID
	Delete(ctx context.Context, guildID string, duelID uuid.UUID) (bool, error)
}

// VoteRepository defines the interface for the vote ledger
type VoteRepository interface {
	// Get returns nil, nil when the voter has not voted in the duel
	Get(ctx context.Context, duelID uuid.UUID, voterID string) (*domain.Vote, error)

	// Create inserts a vote; a second vote by the same voter is a unique violation
	Create(ctx context.Context, v *domain.Vote) error

	// UpdateChoice changes the voter's choice and refreshes the timestamp
	UpdateChoice(ctx context.Context, duelID uuid.UUID, voterID string, competitorID uuid.UUID, at time.Time) error

	// ListByDuel returns every current vote of the duel
	ListByDuel(ctx context.Context, duelID uuid.UUID) ([]domain.Vote, error)

	// CountByDuel returns the per-competitor totals
	CountByDuel(ctx context.Context, duelID uuid.UUID) (map[uuid.UUID]int, error)

	// DeleteByDuels removes the votes of the given duels
	DeleteByDuels(ctx context.Context, duelIDs []uuid.UUID) error
}

// StateUpdate changes the lifecycle columns of a guild configuration. Nil
// fields are left untouched.
type StateUpdate struct {
	IsActive      *bool
	IsPaused      *bool
	NextDuelAt    *time.Time
	ClearNextDuel bool
}

// GuildConfigRepository defines the interface for guild tunables
type GuildConfigRepository interface {
	// Get returns nil, nil when the guild has no configuration
	Get(ctx context.Context, guildID string) (*domain.GuildConfig, error)

	// Upsert writes the tunables without touching lifecycle state
	Upsert(ctx context.Context, cfg *domain.GuildConfig) error

	// ListConfigured returns every guild with a duel channel
	ListConfigured(ctx context.Context) ([]domain.GuildConfig, error)

	// UpdateState changes active, paused and next-duel columns
	UpdateState(ctx context.Context, guildID string, update StateUpdate) error
}

// RetirementLogRepository defines the interface for the retirement audit trail
type RetirementLogRepository interface {
	Create(ctx context.Context, entry *domain.RetirementLog) error
	ListByGuild(ctx context.Context, guildID string, limit int) ([]domain.RetirementLog, error)
	DeleteByCompetitor(ctx context.Context, competitorID uuid.UUID) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Competitors   CompetitorRepository
	Duels         DuelRepository
	ActiveDuels   ActiveDuelRepository
	Votes         VoteRepository
	GuildConfigs  GuildConfigRepository
	RetirementLog RetirementLogRepository

	db *gorm.DB
}

// New builds the gorm-backed repositories
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Competitors:   NewCompetitorRepository(db),
		Duels:         NewDuelRepository(db),
		ActiveDuels:   NewActiveDuelRepository(db),
		Votes:         NewVoteRepository(db),
		GuildConfigs:  NewGuildConfigRepository(db),
		RetirementLog: NewRetirementLogRepository(db),
		db:            db,
	}
}

// Transaction runs fn with repositories bound to a single database transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// ListEligible and RecentPairs make Repositories the matchup selector's store
func (r *Repositories) ListEligible(ctx context.Context, guildID string) ([]domain.Competitor, error) {
	return r.Competitors.ListEligible(ctx, guildID)
}

func (r *Repositories) RecentPairs(ctx context.Context, guildID string, limit int) ([][2]uuid.UUID, error) {
	return r.Duels.RecentPairs(ctx, guildID, limit)
}

// AutoMigrate creates or updates every table the service uses
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.GuildConfig{},
		&domain.Competitor{},
		&domain.Duel{},
		&domain.ActiveDuel{},
		&domain.Vote{},
		&domain.RetirementLog{},
	)
}
