package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"imageduel/internal/domain"
	"imageduel/pkg/logger"
)

// DuelHandler exposes the admin controls of a guild's duel cycle
type DuelHandler struct {
	lifecycle DuelLifecycle
	logger    *logger.Logger
}

// NewDuelHandler creates a new duel handler
func NewDuelHandler(lifecycle DuelLifecycle, logger *logger.Logger) *DuelHandler {
	return &DuelHandler{lifecycle: lifecycle, logger: logger}
}

// RegisterRoutes mounts the handler under a /guilds/{guildID} router
func (h *DuelHandler) RegisterRoutes(r chi.Router) {
	r.Route("/duel", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Post("/skip", h.Skip)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
	})
}

// Start handles POST /duel/start
func (h *DuelHandler) Start(w http.ResponseWriter, r *http.Request) {
	active, err := h.lifecycle.StartDuel(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	h.logger.WithField("guild_id", guildParam(r)).Info("Duel started by admin")
	respondJSON(w, http.StatusCreated, active)
}

// StopResponse carries the result of the window closed by a stop, if any
type StopResponse struct {
	Result *domain.ResolutionResult `json:"result"`
}

// Stop handles POST /duel/stop
func (h *DuelHandler) Stop(w http.ResponseWriter, r *http.Request) {
	result, err := h.lifecycle.StopDuel(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, StopResponse{Result: result})
}

// SkipResponse carries the skipped window's result and the next window.
// Next is null when the pool ran dry.
type SkipResponse struct {
	Result *domain.ResolutionResult `json:"result"`
	Next   *domain.ActiveDuel       `json:"next"`
}

// Skip handles POST /duel/skip
func (h *DuelHandler) Skip(w http.ResponseWriter, r *http.Request) {
	result, next, err := h.lifecycle.SkipDuel(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, SkipResponse{Result: result, Next: next})
}

// Pause handles POST /duel/pause
func (h *DuelHandler) Pause(w http.ResponseWriter, r *http.Request) {
	status, err := h.lifecycle.PauseDuel(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Resume handles POST /duel/resume
func (h *DuelHandler) Resume(w http.ResponseWriter, r *http.Request) {
	status, err := h.lifecycle.ResumeDuel(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
