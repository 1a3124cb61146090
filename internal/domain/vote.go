package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a voter's current choice in a duel. (duel_id, voter_id) is unique.
type Vote struct {
	DuelID       uuid.UUID `json:"duel_id" gorm:"type:uuid;primaryKey"`
	VoterID      string    `json:"voter_id" gorm:"primaryKey;size:32"`
	CompetitorID uuid.UUID `json:"competitor_id" gorm:"type:uuid;not null"`
	VotedAt      time.Time `json:"voted_at" gorm:"not null"`
}

func (Vote) TableName() string { return "votes" }

// VoteOutcome tells the caller what a cast did to the ledger
type VoteOutcome string

const (
	VoteCast    VoteOutcome = "cast"
	VoteChanged VoteOutcome = "changed"
)

// Tally is the per-competitor vote count of a duel
type Tally struct {
	DuelID uuid.UUID         `json:"duel_id"`
	Counts map[uuid.UUID]int `json:"counts"`
	Total  int               `json:"total"`
}

// NewTally builds a tally from persisted votes
func NewTally(duelID uuid.UUID, votes []Vote) *Tally {
	t := &Tally{DuelID: duelID, Counts: make(map[uuid.UUID]int)}
	for _, v := range votes {
		t.Counts[v.CompetitorID]++
		t.Total++
	}
	return t
}

// For returns the number of votes a competitor received
func (t *Tally) For(competitorID uuid.UUID) int {
	if t == nil {
		return 0
	}
	return t.Counts[competitorID]
}

// VoteRequest is the body of the vote endpoint
type VoteRequest struct {
	VoterID      string    `json:"voter_id"`
	CompetitorID uuid.UUID `json:"competitor_id"`
}

// VoteResponse reports the result of a cast
type VoteResponse struct {
	DuelID       uuid.UUID   `json:"duel_id"`
	CompetitorID uuid.UUID   `json:"competitor_id"`
	Outcome      VoteOutcome `json:"outcome"`
	Message      string      `json:"message"`
}
