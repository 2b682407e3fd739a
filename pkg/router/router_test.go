package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"peer-chat-app/backend/internal/chat"
	"peer-chat-app/backend/pkg/di"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRouterOnce sync.Once
	testRouter     *Router
)

// Prometheus collectors register globally, so the container is built once
// and shared across tests.
func setupRouter(t *testing.T) *Router {
	t.Helper()
	testRouterOnce.Do(func() {
		gin.SetMode(gin.TestMode)

		cfg := di.DefaultConfig()
		cfg.DurableHistory = false
		cfg.EnablePresence = false

		container, err := di.New(nil, cfg)
		if err != nil {
			t.Fatalf("building container: %v", err)
		}

		testRouter = New(container)
		testRouter.SetupRoutes()
	})
	return testRouter
}

func TestHealthEndpoint(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_sessions_active")
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r := setupRouter(t)

	routes := []string{
		"/api/v1/users",
		"/api/v1/users/1",
		"/api/v1/conversations/2/messages",
	}

	for _, route := range routes {
		req, _ := http.NewRequest(http.MethodGet, route, nil)
		w := httptest.NewRecorder()
		r.Engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "route %s should require auth", route)
	}
}

func TestWebSocketRouteRejectsMissingToken(t *testing.T) {
	r := setupRouter(t)

	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConversationHistoryEndpoint(t *testing.T) {
	r := setupRouter(t)

	token, err := r.Container.JWTService.GenerateToken(1, "alice")
	require.NoError(t, err)

	// Seed the backlog directly through the history store
	key, err := chat.ResolveKey("1", "2")
	require.NoError(t, err)
	_, err = r.Container.History.Append(context.Background(), key, &chat.Message{
		ID:              "m1",
		ConversationKey: key,
		Sender:          "1",
		Recipient:       "2",
		Text:            "hello",
	})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/conversations/2/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ConversationKey string         `json:"conversationKey"`
		Messages        []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1:2", body.ConversationKey)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "hello", body.Messages[0].Text)
	assert.Equal(t, int64(1), body.Messages[0].Seq)
}

func TestConversationHistoryRejectsSelf(t *testing.T) {
	r := setupRouter(t)

	token, err := r.Container.JWTService.GenerateToken(1, "alice")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/conversations/1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "InvalidParticipantPair")
}
