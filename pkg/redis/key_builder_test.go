package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilder_Environment_Prefixes(t *testing.T) {
	tests := []struct {
		name           string
		environment    string
		expectedPrefix string
	}{
		{name: "production uses prod prefix", environment: "production", expectedPrefix: "prod"},
		{name: "development uses staging prefix", environment: "development", expectedPrefix: "staging"},
		{name: "local uses staging prefix", environment: "local", expectedPrefix: "staging"},
		{name: "staging uses staging prefix", environment: "staging", expectedPrefix: "staging"},
		{name: "unknown defaults to prod prefix", environment: "unknown", expectedPrefix: "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedPrefix, NewKeyBuilder(tt.environment).GetPrefix())
		})
	}
}

func TestKeyBuilder_Keys(t *testing.T) {
	kb := NewKeyBuilder("production")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"live tally", kb.KeyLiveTally("d1"), "prod:duel:d1:tally"},
		{"leaderboard", kb.KeyLeaderboard("g1", 10), "prod:guild:g1:leaderboard:10"},
		{"leaderboard pattern", kb.KeyLeaderboardPattern("g1"), "prod:guild:g1:leaderboard:*"},
		{"live tally generation", kb.KeyLiveTallyGen("d1"), "prod:duel:d1:tally_gen"},
		{"leaderboard generation", kb.KeyLeaderboardGen("g1"), "prod:guild:g1:leaderboard_gen"},
		{"guild lock", kb.KeyGuildLock("g1"), "prod:guild:g1:lock"},
		{"custom", kb.KeyCustom("x:%s:%d", "a", 1), "prod:x:a:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
