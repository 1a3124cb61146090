package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRating is the rating a competitor starts with when the guild does not override it
const DefaultRating = 1000

// Competitor is a submitted image taking part in duels
type Competitor struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	GuildID       string     `json:"guild_id" gorm:"size:32;not null;index:idx_competitors_guild_retired,priority:1"`
	SubmitterID   string     `json:"submitter_id" gorm:"size:32;not null"`
	Title         string     `json:"title" gorm:"size:255"`
	StorageKey    string     `json:"storage_key" gorm:"size:512;not null"`
	Rating        int        `json:"rating" gorm:"not null"`
	Wins          int        `json:"wins" gorm:"not null;default:0"`
	Losses        int        `json:"losses" gorm:"not null;default:0"`
	CurrentStreak int        `json:"current_streak" gorm:"not null;default:0"`
	BestStreak    int        `json:"best_streak" gorm:"not null;default:0"`
	TotalVotes    int        `json:"total_votes" gorm:"not null;default:0"`
	Retired       bool       `json:"retired" gorm:"not null;default:false;index:idx_competitors_guild_retired,priority:2"`
	RetiredAt     *time.Time `json:"retired_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastDuelAt    *time.Time `json:"last_duel_at,omitempty"`
}

// TableName pins the table name used by the repositories and the migrate tool
func (Competitor) TableName() string { return "competitors" }

// RecordWin applies a win to the competitor's counters
func (c *Competitor) RecordWin(newRating int, votes int, at time.Time) {
	c.Rating = newRating
	c.Wins++
	c.CurrentStreak++
	if c.CurrentStreak > c.BestStreak {
		c.BestStreak = c.CurrentStreak
	}
	c.TotalVotes += votes
	c.LastDuelAt = &at
}

// RecordLoss applies a loss to the competitor's counters
func (c *Competitor) RecordLoss(newRating int, votes int, at time.Time) {
	c.Rating = newRating
	c.Losses++
	c.CurrentStreak = 0
	c.TotalVotes += votes
	c.LastDuelAt = &at
}

// Retire withdraws the competitor from the eligible pool
func (c *Competitor) Retire(at time.Time) {
	c.Retired = true
	c.RetiredAt = &at
}

// Unretire puts the competitor back into the eligible pool
func (c *Competitor) Unretire() {
	c.Retired = false
	c.RetiredAt = nil
}

// RetirementLog records an automatic or manual retirement
type RetirementLog struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GuildID      string    `json:"guild_id" gorm:"size:32;not null;index"`
	CompetitorID uuid.UUID `json:"competitor_id" gorm:"type:uuid;not null;index"`
	Reason       string    `json:"reason" gorm:"size:64;not null"`
	Losses       int       `json:"losses"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

func (RetirementLog) TableName() string { return "retirement_log" }
