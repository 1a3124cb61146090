package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageduel/pkg/errors"
	"imageduel/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims AdminClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func adminRouter() http.Handler {
	log := logger.NewNop()
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(AdminAuth(testSecret, "imageduel", log))
	r.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Use(GuildScope(log))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			claims, _ := AdminFromContext(r.Context())
			_, _ = w.Write([]byte(claims.UserID))
		})
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	issued := jwt.RegisteredClaims{Issuer: "imageduel"}

	tests := []struct {
		name       string
		header     string
		path       string
		wantStatus int
		wantType   errors.ErrorType
	}{
		{
			name:       "missing header",
			path:       "/guilds/g1/",
			wantStatus: http.StatusUnauthorized,
			wantType:   errors.ErrorTypeAuthentication,
		},
		{
			name:       "not a bearer token",
			header:     "Basic abc",
			path:       "/guilds/g1/",
			wantStatus: http.StatusUnauthorized,
			wantType:   errors.ErrorTypeAuthentication,
		},
		{
			name:       "wrong secret",
			header:     "Bearer " + signToken(t, "other", AdminClaims{UserID: "u1", Roles: []string{"admin"}, RegisteredClaims: issued}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusUnauthorized,
			wantType:   errors.ErrorTypeAuthentication,
		},
		{
			name:       "wrong issuer",
			header:     "Bearer " + signToken(t, testSecret, AdminClaims{UserID: "u1", Roles: []string{"admin"}, RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusUnauthorized,
			wantType:   errors.ErrorTypeAuthentication,
		},
		{
			name: "expired",
			header: "Bearer " + signToken(t, testSecret, AdminClaims{UserID: "u1", Roles: []string{"admin"}, RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "imageduel",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusUnauthorized,
			wantType:   errors.ErrorTypeAuthentication,
		},
		{
			name:       "not an admin",
			header:     "Bearer " + signToken(t, testSecret, AdminClaims{UserID: "u1", Roles: []string{"member"}, RegisteredClaims: issued}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusForbidden,
			wantType:   errors.ErrorTypeAuthorization,
		},
		{
			name:       "guild outside scope",
			header:     "Bearer " + signToken(t, testSecret, AdminClaims{UserID: "u1", Roles: []string{"admin"}, Guilds: []string{"g2"}, RegisteredClaims: issued}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusForbidden,
			wantType:   errors.ErrorTypeAuthorization,
		},
		{
			name:       "admin of every guild",
			header:     "Bearer " + signToken(t, testSecret, AdminClaims{UserID: "u1", Roles: []string{"admin"}, RegisteredClaims: issued}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusOK,
		},
		{
			name:       "scoped admin",
			header:     "Bearer " + signToken(t, testSecret, AdminClaims{UserID: "u1", Roles: []string{"super_admin"}, Guilds: []string{"g1"}, RegisteredClaims: issued}),
			path:       "/guilds/g1/",
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			adminRouter().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			if tt.wantType == "" {
				assert.Equal(t, "u1", rec.Body.String())
				return
			}
			var body errors.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantType, body.Error.Type)
			assert.Equal(t, rec.Header().Get("X-Request-ID"), body.Error.RequestID)
		})
	}
}

func TestRequestID_KeepsIncomingID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://admin.example.com"}
	h := CORS(cfg, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}
