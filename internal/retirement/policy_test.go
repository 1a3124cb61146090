package retirement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"imageduel/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestSmartThreshold(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		expected int
	}{
		{name: "hourly duels", interval: time.Hour, expected: 36},
		{name: "every 30 minutes", interval: 30 * time.Minute, expected: 72},
		{name: "daily duels", interval: 24 * time.Hour, expected: 2},
		{name: "weekly duels clamp to minimum", interval: 7 * 24 * time.Hour, expected: 2},
		{name: "every 90 minutes", interval: 90 * time.Minute, expected: 24},
		{name: "zero interval", interval: 0, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SmartThreshold(tt.interval))
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := domain.DefaultGuildConfig("g1", domain.ResolutionBonus)
	cfg.DuelDurationSeconds = 1800
	cfg.CooldownSeconds = 1800

	smart := FromConfig(cfg)
	if assert.NotNil(t, smart.LossLimit) {
		assert.Equal(t, 36, *smart.LossLimit)
	}
	assert.Nil(t, smart.RatingFloor)

	cfg.RetirementMode = domain.RetirementManual
	cfg.RetireAfterLosses = intPtr(5)
	cfg.RetireBelowRating = intPtr(800)
	manual := FromConfig(cfg)
	assert.Equal(t, 5, *manual.LossLimit)
	assert.Equal(t, 800, *manual.RatingFloor)

	cfg.RetireAfterLosses = nil
	cfg.RetireBelowRating = nil
	assert.False(t, FromConfig(cfg).Enabled())

	cfg.RetirementMode = domain.RetirementOff
	cfg.RetireAfterLosses = intPtr(1)
	assert.False(t, FromConfig(cfg).Enabled())
}

func TestShouldRetire(t *testing.T) {
	both := Thresholds{LossLimit: intPtr(3), RatingFloor: intPtr(900)}

	tests := []struct {
		name       string
		competitor *domain.Competitor
		thresholds Thresholds
		retire     bool
		reason     Reason
	}{
		{
			name:       "below both thresholds",
			competitor: &domain.Competitor{Losses: 2, Rating: 950},
			thresholds: both,
		},
		{
			name:       "loss limit reached",
			competitor: &domain.Competitor{Losses: 3, Rating: 950},
			thresholds: both,
			retire:     true,
			reason:     ReasonLosses,
		},
		{
			name:       "rating under floor",
			competitor: &domain.Competitor{Losses: 0, Rating: 899},
			thresholds: both,
			retire:     true,
			reason:     ReasonRatingFloor,
		},
		{
			name:       "rating equal to floor stays",
			competitor: &domain.Competitor{Losses: 0, Rating: 900},
			thresholds: both,
		},
		{
			name:       "already retired",
			competitor: &domain.Competitor{Losses: 10, Rating: 100, Retired: true},
			thresholds: both,
		},
		{
			name:       "disabled",
			competitor: &domain.Competitor{Losses: 100, Rating: 0},
			thresholds: Thresholds{},
		},
		{
			name:       "floor only",
			competitor: &domain.Competitor{Losses: 100, Rating: 1000},
			thresholds: Thresholds{RatingFloor: intPtr(500)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retire, reason := ShouldRetire(tt.competitor, tt.thresholds)
			assert.Equal(t, tt.retire, retire)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
