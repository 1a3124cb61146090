package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/internal/middleware"
	"imageduel/pkg/errors"
	"imageduel/pkg/logger"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err onto the error envelope. Anything that is not an
// AppError is reported as an internal error without leaking its text.
func respondError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	appErr, ok := errors.As(err)
	if !ok {
		log.Error("Unhandled request error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err))
		appErr = errors.NewInternalError("Internal server error", err)
	}
	middleware.WriteError(w, r, appErr, log)
}

func guildParam(r *http.Request) string {
	return chi.URLParam(r, "guildID")
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.NewValidationError("invalid "+name, map[string]interface{}{name: chi.URLParam(r, name)})
	}
	return id, nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError("invalid "+name, map[string]interface{}{name: raw})
	}
	return n, nil
}
