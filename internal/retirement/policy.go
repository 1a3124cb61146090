// Package retirement decides when a losing competitor leaves the active pool.
package retirement

import (
	"math"
	"time"

	"imageduel/internal/domain"
)

// MinSmartThreshold is the lowest loss count smart mode will ever use
const MinSmartThreshold = 2

// Reason names the rule that retired a competitor
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonLosses      Reason = "loss_threshold"
	ReasonRatingFloor Reason = "rating_floor"
	ReasonManual      Reason = "manual"
)

// Thresholds is the resolved retirement rule set. A nil field disables that rule.
type Thresholds struct {
	LossLimit   *int
	RatingFloor *int
}

// Enabled reports whether any rule can retire a competitor
func (t Thresholds) Enabled() bool {
	return t.LossLimit != nil || t.RatingFloor != nil
}

// SmartThreshold is roughly a day and a half worth of duels, never below two
func SmartThreshold(interval time.Duration) int {
	seconds := interval.Seconds()
	if seconds <= 0 {
		return MinSmartThreshold
	}
	n := int(math.Floor(86400 / seconds * 1.5))
	if n < MinSmartThreshold {
		return MinSmartThreshold
	}
	return n
}

// FromConfig resolves the thresholds a guild's configuration asks for
func FromConfig(cfg *domain.GuildConfig) Thresholds {
	switch cfg.RetirementMode {
	case domain.RetirementSmart:
		limit := SmartThreshold(cfg.DuelInterval())
		return Thresholds{LossLimit: &limit, RatingFloor: cfg.RetireBelowRating}
	case domain.RetirementManual:
		return Thresholds{LossLimit: cfg.RetireAfterLosses, RatingFloor: cfg.RetireBelowRating}
	default:
		return Thresholds{}
	}
}

// ShouldRetire evaluates the thresholds against a competitor's current stats
func ShouldRetire(c *domain.Competitor, t Thresholds) (bool, Reason) {
	if c == nil || c.Retired {
		return false, ReasonNone
	}
	if t.LossLimit != nil && c.Losses >= *t.LossLimit {
		return true, ReasonLosses
	}
	if t.RatingFloor != nil && c.Rating < *t.RatingFloor {
		return true, ReasonRatingFloor
	}
	return false, ReasonNone
}
