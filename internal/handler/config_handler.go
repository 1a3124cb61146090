package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"imageduel/internal/domain"
	"imageduel/pkg/errors"
	"imageduel/pkg/logger"
)

// GuildConfigStore reads and writes guild tunables
type GuildConfigStore interface {
	Get(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	Defaults(guildID string) *domain.GuildConfig
	Upsert(ctx context.Context, cfg *domain.GuildConfig) (*domain.GuildConfig, error)
}

// ConfigHandler exposes a guild's tunables
type ConfigHandler struct {
	configs GuildConfigStore
	logger  *logger.Logger
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(configs GuildConfigStore, logger *logger.Logger) *ConfigHandler {
	return &ConfigHandler{configs: configs, logger: logger}
}

// RegisterRoutes mounts the handler under a /guilds/{guildID} router
func (h *ConfigHandler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.Get)
	r.Put("/config", h.Put)
}

// Get handles GET /config
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.Get(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// Put handles PUT /config. Fields absent from the body keep their stored
// value, or the default for a new guild. Lifecycle fields are never taken
// from the body.
func (h *ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	guildID := guildParam(r)

	cfg, err := h.configs.Get(r.Context(), guildID)
	if errors.IsType(err, errors.ErrorTypeConfigMissing) {
		cfg, err = h.configs.Defaults(guildID), nil
	}
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		respondError(w, r, errors.NewValidationError("Invalid request body", nil), h.logger)
		return
	}
	cfg.GuildID = guildID
	cfg.IsActive, cfg.IsPaused, cfg.NextDuelAt = false, false, nil

	saved, err := h.configs.Upsert(r.Context(), cfg)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
