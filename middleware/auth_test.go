package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoAuth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := GetAuthFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = io.WriteString(w, auth.ParticipantID+"|"+string(auth.Role))
	})
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := a.Authenticate(echoAuth())

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "string user id with role",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "p-1", "role": "organizer"}),
			wantStatus: http.StatusOK,
			wantBody:   "p-1|organizer",
		},
		{
			name:       "numeric user id defaults to participant",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": float64(42)}),
			wantStatus: http.StatusOK,
			wantBody:   "42|participant",
		},
		{
			name:       "token in query for websocket",
			query:      "access_token=" + signToken(t, testSecret, jwt.MapClaims{"user_id": "p-2"}),
			wantStatus: http.StatusOK,
			wantBody:   "p-2|participant",
		},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{
			name:       "wrong secret",
			header:     "Bearer " + signToken(t, "other", jwt.MapClaims{"user_id": "p-1"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "p-1", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown role",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": "p-1", "role": "root"}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing user id",
			header:     "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "admin"}),
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				require.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleOrganizer, models.RoleAdmin)(echoAuth())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = req.WithContext(WithAuth(req.Context(), models.AuthContext{ParticipantID: "p", Role: models.RoleParticipant}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithAuth(req.Context(), models.AuthContext{ParticipantID: "o", Role: models.RoleOrganizer}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
