package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"imageduel/pkg/errors"
	"imageduel/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// AdminContextKey is the key for the admin's claims in context
	AdminContextKey ContextKey = "admin"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// AdminClaims are the JWT claims of an admin token. An empty Guilds list
// grants every guild.
type AdminClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	Guilds []string `json:"guilds,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token carries an admin role
func (c *AdminClaims) IsAdmin() bool {
	return slices.Contains(c.Roles, "admin") || slices.Contains(c.Roles, "super_admin")
}

// CanManage reports whether the admin may act on the guild
func (c *AdminClaims) CanManage(guildID string) bool {
	return len(c.Guilds) == 0 || slices.Contains(c.Guilds, guildID)
}

// AdminFromContext returns the claims set by AdminAuth
func AdminFromContext(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(AdminContextKey).(*AdminClaims)
	return claims, ok && claims != nil
}

// AdminAuth requires a bearer token signed with secret and carrying an admin
// role. A non-empty issuer must match.
func AdminAuth(secret, issuer string, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				WriteError(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				WriteError(w, r, errors.NewAuthenticationError("Token is required"), logger)
				return
			}

			claims, err := ParseAdminToken(token, secret, issuer)
			if err != nil {
				logger.WithError(err).Debug("Token validation failed")
				WriteError(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}
			if !claims.IsAdmin() {
				WriteError(w, r, errors.NewAuthorizationError("Admin role required"), logger)
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, claims)
			logger.WithField("user_id", claims.UserID).Debug("Admin authenticated")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseAdminToken validates an HMAC-signed admin token
func ParseAdminToken(tokenString, secret, issuer string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("invalid token: missing user_id claim")
	}
	return claims, nil
}

// GuildScope rejects admins whose token does not cover the {guildID} route
// parameter. It must run inside a route that declares the parameter.
func GuildScope(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := AdminFromContext(r.Context())
			if !ok || !claims.CanManage(chi.URLParam(r, "guildID")) {
				WriteError(w, r, errors.NewAuthorizationError("Not allowed to manage this guild"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID creates a middleware that adds a unique request ID to each request
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the request ID, if any
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// WriteError writes an AppError as the JSON error envelope. Server-side
// failures are logged at error level, client mistakes at debug.
func WriteError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	requestID := RequestIDFromContext(r.Context())
	fields := []zap.Field{
		zap.String("type", string(appErr.Type)),
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID),
		zap.Error(appErr),
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request error", fields...)
	} else {
		logger.Debug("Request rejected", fields...)
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = requestID
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(response)
}
