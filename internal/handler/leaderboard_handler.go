package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"imageduel/internal/domain"
	"imageduel/pkg/logger"
)

// Ranker returns a guild's top competitors
type Ranker interface {
	Top(ctx context.Context, guildID string, limit int) ([]domain.Competitor, error)
}

// LeaderboardHandler serves the guild leaderboard
type LeaderboardHandler struct {
	ranker Ranker
	urls   func(c *domain.Competitor) string
	logger *logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler. urls resolves
// image URLs and may be nil.
func NewLeaderboardHandler(ranker Ranker, urls func(c *domain.Competitor) string, logger *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{ranker: ranker, urls: urls, logger: logger}
}

// RegisterRoutes mounts the handler under a /guilds/{guildID} router
func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/leaderboard", h.Get)
}

// LeaderboardEntry is one ranked competitor
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	CompetitorID  string `json:"competitor_id"`
	Title         string `json:"title"`
	SubmitterID   string `json:"submitter_id"`
	Rating        int    `json:"rating"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	CurrentStreak int    `json:"current_streak"`
	BestStreak    int    `json:"best_streak"`
	ImageURL      string `json:"image_url,omitempty"`
}

// Get handles GET /leaderboard?limit=n
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	rows, err := h.ranker.Top(r.Context(), guildParam(r), limit)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i := range rows {
		c := &rows[i]
		entry := LeaderboardEntry{
			Rank:          i + 1,
			CompetitorID:  c.ID.String(),
			Title:         c.Title,
			SubmitterID:   c.SubmitterID,
			Rating:        c.Rating,
			Wins:          c.Wins,
			Losses:        c.Losses,
			CurrentStreak: c.CurrentStreak,
			BestStreak:    c.BestStreak,
		}
		if h.urls != nil {
			entry.ImageURL = h.urls(c)
		}
		entries = append(entries, entry)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"guild_id": guildParam(r),
		"entries":  entries,
	})
}
