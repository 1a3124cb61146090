package handler

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"imageduel/internal/domain"
	"imageduel/pkg/errors"
	"imageduel/pkg/logger"
)

// DuelLifecycle is the lifecycle manager as seen by the HTTP API
type DuelLifecycle interface {
	Status(ctx context.Context, guildID string) (*domain.DuelStatus, error)
	StartDuel(ctx context.Context, guildID string) (*domain.ActiveDuel, error)
	StopDuel(ctx context.Context, guildID string) (*domain.ResolutionResult, error)
	SkipDuel(ctx context.Context, guildID string) (*domain.ResolutionResult, *domain.ActiveDuel, error)
	PauseDuel(ctx context.Context, guildID string) (*domain.DuelStatus, error)
	ResumeDuel(ctx context.Context, guildID string) (*domain.DuelStatus, error)
	CastVote(ctx context.Context, guildID string, duelID uuid.UUID, voterID string, competitorID uuid.UUID) (*domain.VoteResponse, error)
}

// VotingHandler serves the duel status poll and vote submission
type VotingHandler struct {
	lifecycle DuelLifecycle
	logger    *logger.Logger
}

// NewVotingHandler creates a new voting handler
func NewVotingHandler(lifecycle DuelLifecycle, logger *logger.Logger) *VotingHandler {
	return &VotingHandler{lifecycle: lifecycle, logger: logger}
}

// RegisterRoutes mounts the handler under a /guilds/{guildID} router
func (h *VotingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/duel", h.GetDuelStatus)
	r.Post("/votes", h.SubmitVote)
}

// GetDuelStatus handles GET /duel (polling endpoint)
func (h *VotingHandler) GetDuelStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.lifecycle.Status(r.Context(), guildParam(r))
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	etag := generateETag(status)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=5")

	respondJSON(w, http.StatusOK, status)
}

type submitVoteRequest struct {
	domain.VoteRequest
	DuelID uuid.UUID `json:"duel_id"`
}

// SubmitVote handles POST /votes. duel_id is optional; when present it must
// name the open window.
func (h *VotingHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var req submitVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, errors.NewValidationError("Invalid request body", nil), h.logger)
		return
	}
	if problems := validateVoteRequest(&req.VoteRequest); problems != nil {
		respondError(w, r, errors.NewValidationError("Invalid vote", problems), h.logger)
		return
	}

	resp, err := h.lifecycle.CastVote(r.Context(), guildParam(r), req.DuelID, req.VoterID, req.CompetitorID)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func validateVoteRequest(req *domain.VoteRequest) map[string]interface{} {
	problems := make(map[string]interface{})
	if req.VoterID == "" {
		problems["voter_id"] = "is required"
	}
	if req.CompetitorID == uuid.Nil {
		problems["competitor_id"] = "is required"
	}
	if len(problems) == 0 {
		return nil
	}
	return problems
}

func generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}
