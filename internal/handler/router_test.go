package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/speedauto/speedauto-assistant-go/internal/chat/domain"
	maindomain "github.com/speedauto/speedauto-assistant-go/internal/domain"
	"github.com/speedauto/speedauto-assistant-go/internal/handler"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type recordingResponder struct {
	sessions []string
}

func (r *recordingResponder) Respond(_ context.Context, req domain.TurnRequest) string {
	r.sessions = append(r.sessions, req.SessionID)
	return "ok"
}

func newRouter(store handler.Pinger, chat *recordingResponder, secret string) http.Handler {
	if chat == nil {
		chat = &recordingResponder{}
	}
	cfg := handler.RouterConfig{CORSOrigins: []string{"*"}, JWTSecret: secret}
	return handler.NewRouter(chat, store, observability.NewMetrics(), cfg, zap.NewNop())
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name  string
		store handler.Pinger
		want  string
	}{
		{"no store", nil, "healthy"},
		{"store up", stubPinger{}, "healthy"},
		{"store down", stubPinger{err: errors.New("connection refused")}, "degraded"},
		{"breaker open", stubPinger{err: &maindomain.ErrCircuitOpen{Service: "supabase"}}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newRouter(tt.store, nil, ""), http.MethodGet, "/healthz", "", nil)

			require.Equal(t, http.StatusOK, rec.Code)
			var body maindomain.HealthStatus
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestReadyz(t *testing.T) {
	rec := serve(newRouter(nil, nil, ""), http.MethodGet, "/readyz", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	rec := serve(newRouter(nil, nil, ""), http.MethodGet, "/metrics", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestChatbotMetrics(t *testing.T) {
	rec := serve(newRouter(nil, nil, ""), http.MethodGet, "/v1/metrics/chatbot", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap maindomain.ChatbotMetrics
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Zero(t, snap.TotalTurns)
}

func TestChatRoutes(t *testing.T) {
	chat := &recordingResponder{}
	router := newRouter(nil, chat, "")

	legacy := serve(router, http.MethodPost, "/api/chatbot", `{"message":"oi"}`, nil)
	v1 := serve(router, http.MethodPost, "/v1/chat", `{"message":"oi","sessionId":"s-9"}`, nil)
	invalid := serve(router, http.MethodPost, "/api/chatbot", `{"message":""}`, nil)

	assert.Equal(t, http.StatusOK, legacy.Code)
	assert.Equal(t, http.StatusOK, v1.Code)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
	assert.Equal(t, []string{"", "s-9"}, chat.sessions)
}

func TestJWTSession(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantSess   string
	}{
		{"anonymous", "", http.StatusOK, "body-session"},
		{"valid token", "Bearer " + signToken(t, testSecret, "user-1", time.Now().Add(time.Hour)), http.StatusOK, "user-1"},
		{"expired token", "Bearer " + signToken(t, testSecret, "user-1", time.Now().Add(-time.Hour)), http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, "other", "user-1", time.Now().Add(time.Hour)), http.StatusUnauthorized, ""},
		{"bad format", "Token abc", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &recordingResponder{}
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}

			rec := serve(newRouter(nil, chat, testSecret), http.MethodPost, "/v1/chat",
				`{"message":"oi","sessionId":"body-session"}`, headers)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, []string{tt.wantSess}, chat.sessions)
			} else {
				assert.Empty(t, chat.sessions)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := serve(newRouter(nil, nil, ""), http.MethodOptions, "/v1/chat", "", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": http.MethodPost,
	})

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
