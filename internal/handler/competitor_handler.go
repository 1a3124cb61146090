package handler

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"imageduel/internal/domain"
	"imageduel/internal/service"
	"imageduel/pkg/errors"
	"imageduel/pkg/logger"
)

// MaxImageBytes caps a single uploaded image
const MaxImageBytes = 10 << 20

// CompetitorManager is the competitor pool as seen by the HTTP API
type CompetitorManager interface {
	Import(ctx context.Context, req service.ImportRequest) (*domain.Competitor, error)
	List(ctx context.Context, guildID string, includeRetired bool) ([]domain.Competitor, error)
	Retirements(ctx context.Context, guildID string, limit int) ([]domain.RetirementLog, error)
	Retire(ctx context.Context, guildID string, id uuid.UUID) (*domain.Competitor, error)
	Unretire(ctx context.Context, guildID string, id uuid.UUID) (*domain.Competitor, error)
	Delete(ctx context.Context, guildID string, id uuid.UUID) error
	ImageURL(c *domain.Competitor) string
}

// CompetitorHandler manages a guild's competitor pool
type CompetitorHandler struct {
	competitors CompetitorManager
	logger      *logger.Logger
}

// NewCompetitorHandler creates a new competitor handler
func NewCompetitorHandler(competitors CompetitorManager, logger *logger.Logger) *CompetitorHandler {
	return &CompetitorHandler{competitors: competitors, logger: logger}
}

// RegisterRoutes mounts the handler under a /guilds/{guildID} router
func (h *CompetitorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/competitors", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Import)
		r.Get("/retirements", h.Retirements)
		r.Post("/{competitorID}/retire", h.Retire)
		r.Post("/{competitorID}/unretire", h.Unretire)
		r.Delete("/{competitorID}", h.Delete)
	})
}

// CompetitorView is a competitor with its resolved image URL
type CompetitorView struct {
	domain.Competitor
	ImageURL string `json:"image_url,omitempty"`
}

func (h *CompetitorHandler) view(c *domain.Competitor) CompetitorView {
	return CompetitorView{Competitor: *c, ImageURL: h.competitors.ImageURL(c)}
}

// List handles GET /competitors?include_retired=true
func (h *CompetitorHandler) List(w http.ResponseWriter, r *http.Request) {
	includeRetired := r.URL.Query().Get("include_retired") == "true"
	rows, err := h.competitors.List(r.Context(), guildParam(r), includeRetired)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}

	views := make([]CompetitorView, 0, len(rows))
	for i := range rows {
		views = append(views, h.view(&rows[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"competitors": views,
		"count":       len(views),
	})
}

// Import handles POST /competitors as multipart form data with an "image"
// file plus submitter_id and title fields.
func (h *CompetitorHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		respondError(w, r, errors.NewValidationError("Invalid multipart upload", map[string]interface{}{
			"max_bytes": MaxImageBytes,
		}), h.logger)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, r, errors.NewValidationError("image file is required", nil), h.logger)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		respondError(w, r, errors.NewValidationError("Failed to read image", nil), h.logger)
		return
	}
	if len(body) > MaxImageBytes {
		respondError(w, r, errors.NewValidationError("Image too large", map[string]interface{}{
			"max_bytes": MaxImageBytes,
		}), h.logger)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}

	c, err := h.competitors.Import(r.Context(), service.ImportRequest{
		GuildID:     guildParam(r),
		SubmitterID: r.FormValue("submitter_id"),
		Title:       r.FormValue("title"),
		ContentType: contentType,
		Body:        bytes.NewReader(body),
	})
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusCreated, h.view(c))
}

// Retire handles POST /competitors/{competitorID}/retire
func (h *CompetitorHandler) Retire(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.competitors.Retire)
}

// Unretire handles POST /competitors/{competitorID}/unretire
func (h *CompetitorHandler) Unretire(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.competitors.Unretire)
}

func (h *CompetitorHandler) toggle(w http.ResponseWriter, r *http.Request, op func(context.Context, string, uuid.UUID) (*domain.Competitor, error)) {
	id, err := uuidParam(r, "competitorID")
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	c, err := op(r.Context(), guildParam(r), id)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, h.view(c))
}

// Delete handles DELETE /competitors/{competitorID}
func (h *CompetitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "competitorID")
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	if err := h.competitors.Delete(r.Context(), guildParam(r), id); err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retirements handles GET /competitors/retirements?limit=n
func (h *CompetitorHandler) Retirements(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	rows, err := h.competitors.Retirements(r.Context(), guildParam(r), limit)
	if err != nil {
		respondError(w, r, err, h.logger)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"retirements": rows,
		"count":       len(rows),
	})
}
