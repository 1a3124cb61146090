package domain

import (
	"fmt"
	"time"
)

// ResolutionMode selects how ratings change when a duel is decided
type ResolutionMode string

const (
	// ResolutionSimple applies plain ELO and plain matchup selection
	ResolutionSimple ResolutionMode = "simple"
	// ResolutionBonus applies streak, upset and wildcard bonuses and balanced matchups
	ResolutionBonus ResolutionMode = "bonus"
)

// RetirementMode selects how the loss threshold is derived
type RetirementMode string

const (
	RetirementSmart  RetirementMode = "smart"
	RetirementManual RetirementMode = "manual"
	RetirementOff    RetirementMode = "off"
)

// GuildConfig holds the per-guild tunables. It is read on every cycle and
// never cached. Columns carry no gorm defaults so that zero values persist.
type GuildConfig struct {
	GuildID             string         `json:"guild_id" gorm:"primaryKey;size:32"`
	ChannelID           string         `json:"channel_id" gorm:"size:32"`
	DuelDurationSeconds int            `json:"duel_duration_seconds" gorm:"not null"`
	CooldownSeconds     int            `json:"cooldown_seconds" gorm:"not null"`
	StartingRating      int            `json:"starting_rating" gorm:"not null"`
	KFactor             float64        `json:"k_factor" gorm:"column:k_factor;not null"`
	StreakBonus2        float64        `json:"streak_bonus_2" gorm:"column:streak_bonus_2;not null"`
	StreakBonus3        float64        `json:"streak_bonus_3" gorm:"column:streak_bonus_3;not null"`
	UpsetBonus          float64        `json:"upset_bonus" gorm:"not null"`
	WildcardChance      float64        `json:"wildcard_chance" gorm:"not null"`
	MinVotes            int            `json:"min_votes" gorm:"not null"`
	RecentExclusion     int            `json:"recent_exclusion" gorm:"not null"`
	ResolutionMode      ResolutionMode `json:"resolution_mode" gorm:"size:16;not null"`
	RetirementMode      RetirementMode `json:"retirement_mode" gorm:"size:16;not null"`
	RetireAfterLosses   *int           `json:"retire_after_losses,omitempty"`
	RetireBelowRating   *int           `json:"retire_below_rating,omitempty"`
	IsActive            bool           `json:"is_active" gorm:"not null"`
	IsPaused            bool           `json:"is_paused" gorm:"not null"`
	NextDuelAt          *time.Time     `json:"next_duel_at,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (GuildConfig) TableName() string { return "guild_configs" }

// DefaultGuildConfig returns the tunables a new guild starts with
func DefaultGuildConfig(guildID string, mode ResolutionMode) *GuildConfig {
	if mode == "" {
		mode = ResolutionBonus
	}
	return &GuildConfig{
		GuildID:             guildID,
		DuelDurationSeconds: 1800,
		CooldownSeconds:     3600,
		StartingRating:      DefaultRating,
		KFactor:             32,
		StreakBonus2:        0.10,
		StreakBonus3:        0.20,
		UpsetBonus:          0.50,
		WildcardChance:      0.05,
		MinVotes:            1,
		RecentExclusion:     5,
		ResolutionMode:      mode,
		RetirementMode:      RetirementSmart,
	}
}

// Configured reports whether the guild has somewhere to post duels
func (c *GuildConfig) Configured() bool {
	return c != nil && c.ChannelID != ""
}

// DuelDuration is the length of a voting window
func (c *GuildConfig) DuelDuration() time.Duration {
	return time.Duration(c.DuelDurationSeconds) * time.Second
}

// Cooldown is the wait between the end of one window and the next start
func (c *GuildConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// DuelInterval is the time between two consecutive duel starts
func (c *GuildConfig) DuelInterval() time.Duration {
	return c.DuelDuration() + c.Cooldown()
}

// Validate checks the tunables an admin submitted
func (c *GuildConfig) Validate() map[string]interface{} {
	problems := make(map[string]interface{})
	if c.GuildID == "" {
		problems["guild_id"] = "is required"
	}
	if c.DuelDurationSeconds < 60 {
		problems["duel_duration_seconds"] = "must be at least 60"
	}
	if c.CooldownSeconds < 0 {
		problems["cooldown_seconds"] = "must not be negative"
	}
	if c.StartingRating < 0 {
		problems["starting_rating"] = "must not be negative"
	}
	if c.KFactor <= 0 {
		problems["k_factor"] = "must be positive"
	}
	for field, v := range map[string]float64{
		"streak_bonus_2": c.StreakBonus2,
		"streak_bonus_3": c.StreakBonus3,
		"upset_bonus":    c.UpsetBonus,
	} {
		if v < 0 {
			problems[field] = "must not be negative"
		}
	}
	if c.WildcardChance < 0 || c.WildcardChance > 1 {
		problems["wildcard_chance"] = "must be between 0 and 1"
	}
	if c.MinVotes < 0 {
		problems["min_votes"] = "must not be negative"
	}
	if c.RecentExclusion < 0 {
		problems["recent_exclusion"] = "must not be negative"
	}
	switch c.ResolutionMode {
	case ResolutionSimple, ResolutionBonus:
	default:
		problems["resolution_mode"] = fmt.Sprintf("unknown mode %q", c.ResolutionMode)
	}
	switch c.RetirementMode {
	case RetirementSmart, RetirementOff:
	case RetirementManual:
		if c.RetireAfterLosses != nil && *c.RetireAfterLosses < 1 {
			problems["retire_after_losses"] = "must be at least 1"
		}
	default:
		problems["retirement_mode"] = fmt.Sprintf("unknown mode %q", c.RetirementMode)
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}
