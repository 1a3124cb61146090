package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "dev", "local", "staging":
		prefix = "staging"
	}
	return &KeyBuilder{prefix: prefix}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

func (kb *KeyBuilder) KeyLiveTally(duelID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLiveTally, duelID))
}

func (kb *KeyBuilder) KeyLiveTallyGen(duelID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLiveTallyGen, duelID))
}

func (kb *KeyBuilder) KeyLeaderboardGen(guildID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLeaderboardGen, guildID))
}

func (kb *KeyBuilder) KeyLeaderboard(guildID string, limit int) string {
	return kb.BuildKey(fmt.Sprintf(KeyLeaderboard, guildID, limit))
}

func (kb *KeyBuilder) KeyLeaderboardPattern(guildID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLeaderboardPattern, guildID))
}

func (kb *KeyBuilder) KeyGuildLock(guildID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyGuildLock, guildID))
}

// KeyCustom builds a prefixed key from a custom pattern
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	return kb.BuildKey(fmt.Sprintf(pattern, args...))
}
