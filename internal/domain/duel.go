package domain

import (
	"time"

	"github.com/google/uuid"
)

// DuelOutcome describes how a duel ended
type DuelOutcome string

const (
	DuelOutcomePending DuelOutcome = "pending"
	DuelOutcomeDecided DuelOutcome = "decided"
	DuelOutcomeSkipped DuelOutcome = "skipped"
	DuelOutcomeVoided  DuelOutcome = "voided"
)

// Duel is one voting window between two competitors. Rows are append-only
// once EndedAt is set.
type Duel struct {
	ID            uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	GuildID       string      `json:"guild_id" gorm:"size:32;not null;index:idx_duels_guild_ended,priority:1"`
	CompetitorAID uuid.UUID   `json:"competitor_a_id" gorm:"type:uuid;not null;index"`
	CompetitorBID uuid.UUID   `json:"competitor_b_id" gorm:"type:uuid;not null;index"`
	WinnerID      *uuid.UUID  `json:"winner_id,omitempty" gorm:"type:uuid"`
	StartedAt     time.Time   `json:"started_at" gorm:"not null"`
	EndedAt       *time.Time  `json:"ended_at,omitempty" gorm:"index:idx_duels_guild_ended,priority:2"`
	IsWildcard    bool        `json:"is_wildcard" gorm:"not null;default:false"`
	VotesA        int         `json:"votes_a" gorm:"not null;default:0"`
	VotesB        int         `json:"votes_b" gorm:"not null;default:0"`
	Outcome       DuelOutcome `json:"outcome" gorm:"size:16;not null;default:pending"`
}

func (Duel) TableName() string { return "duels" }

// Involves reports whether the competitor is one of the duel's two sides
func (d *Duel) Involves(competitorID uuid.UUID) bool {
	return competitorID == d.CompetitorAID || competitorID == d.CompetitorBID
}

// Opponent returns the other side of the duel
func (d *Duel) Opponent(competitorID uuid.UUID) uuid.UUID {
	if competitorID == d.CompetitorAID {
		return d.CompetitorBID
	}
	return d.CompetitorAID
}

// IsResolved reports whether resolution already ran for the duel
func (d *Duel) IsResolved() bool {
	return d.EndedAt != nil
}

// ActiveDuel points at the single open duel of a guild
type ActiveDuel struct {
	GuildID       string    `json:"guild_id" gorm:"primaryKey;size:32"`
	DuelID        uuid.UUID `json:"duel_id" gorm:"type:uuid;not null;uniqueIndex"`
	CompetitorAID uuid.UUID `json:"competitor_a_id" gorm:"type:uuid;not null"`
	CompetitorBID uuid.UUID `json:"competitor_b_id" gorm:"type:uuid;not null"`
	ChannelID     string    `json:"channel_id" gorm:"size:32"`
	MessageID     string    `json:"message_id" gorm:"size:32"`
	EndsAt        time.Time `json:"ends_at" gorm:"not null"`
	IsWildcard    bool      `json:"is_wildcard" gorm:"not null;default:false"`
}

func (ActiveDuel) TableName() string { return "active_duels" }

// Expired reports whether the voting window has closed at the given instant
func (a *ActiveDuel) Expired(now time.Time) bool {
	return !now.Before(a.EndsAt)
}

// MessageRef locates the chat message announcing a duel
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}
