package api

import (
	"net/http"

	"peer-chat-app/backend/internal/chat"
	"peer-chat-app/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// HealthHandler exposes liveness and readiness endpoints
type HealthHandler struct {
	checker  *health.Checker
	registry *chat.Registry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *health.Checker, registry *chat.Registry) *HealthHandler {
	return &HealthHandler{checker: checker, registry: registry}
}

// Liveness reports that the process is up
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.registry.SessionCount(),
	})
}

// Readiness reports component health from the periodic checker
func (h *HealthHandler) Readiness(c *gin.Context) {
	h.checker.Handler()(c)
}
