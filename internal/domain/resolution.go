package domain

import (
	"github.com/google/uuid"
)

// LifecycleState is the derived state of a guild's duel cycle
type LifecycleState string

const (
	StateIdle     LifecycleState = "idle"
	StateVoting   LifecycleState = "voting"
	StateCooldown LifecycleState = "cooldown"
	StatePaused   LifecycleState = "paused"
)

// Void reasons reported on skipped duels
const (
	VoidNoVotes      = "no_votes"
	VoidTie          = "tie"
	VoidUploaderOnly = "uploader_only"
	VoidBelowMinimum = "below_min_votes"
)

// ResolutionResult is everything the presentation layer needs after a window
// closes. Winner and loser fields are only set when Outcome is decided.
type ResolutionResult struct {
	GuildID         string      `json:"guild_id"`
	DuelID          uuid.UUID   `json:"duel_id"`
	Outcome         DuelOutcome `json:"outcome"`
	Skipped         bool        `json:"skipped"`
	VoidReason      string      `json:"void_reason,omitempty"`
	CompetitorAID   uuid.UUID   `json:"competitor_a_id"`
	CompetitorBID   uuid.UUID   `json:"competitor_b_id"`
	VotesA          int         `json:"votes_a"`
	VotesB          int         `json:"votes_b"`
	WinnerID        uuid.UUID   `json:"winner_id,omitempty"`
	LoserID         uuid.UUID   `json:"loser_id,omitempty"`
	WinnerVotes     int         `json:"winner_votes"`
	LoserVotes      int         `json:"loser_votes"`
	TotalVotes      int         `json:"total_votes"`
	WinnerRating    int         `json:"winner_rating"`
	LoserRating     int         `json:"loser_rating"`
	WinnerDelta     int         `json:"winner_delta"`
	LoserDelta      int         `json:"loser_delta"`
	Retired         bool        `json:"retired"`
	RetiredID       uuid.UUID   `json:"retired_id,omitempty"`
	IsWildcard      bool        `json:"is_wildcard"`
	AlreadyResolved bool        `json:"-"`
}

// DuelStatus is the admin view of a guild's duel cycle
type DuelStatus struct {
	GuildID string         `json:"guild_id"`
	State   LifecycleState `json:"state"`
	Active  *ActiveDuel    `json:"active,omitempty"`
	Tally   *Tally         `json:"tally,omitempty"`
}
