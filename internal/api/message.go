package api

import (
	"net/http"
	"strconv"

	"peer-chat-app/backend/internal/chat"
	pkgerrors "peer-chat-app/backend/pkg/errors"
	"peer-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// MessageHandler serves conversation history over REST. The same backlog is
// pushed on the websocket at join time; this endpoint exists for clients that
// want to render history before opening a socket.
type MessageHandler struct {
	history chat.HistoryStore
	logger  *logger.Logger

	// maxMessages caps any single response; 0 means unlimited.
	maxMessages int
}

// NewMessageHandler creates a new message history handler
func NewMessageHandler(history chat.HistoryStore, maxMessages int, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		history:     history,
		logger:      log,
		maxMessages: maxMessages,
	}
}

// GetConversation returns the message backlog for the conversation between
// the authenticated user and the peer named in the path.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	self := chat.ParticipantID(strconv.FormatUint(uint64(userID.(uint)), 10))
	peer := chat.ParticipantID(c.Param("peerId"))

	key, err := chat.ResolveKey(self, peer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": pkgerrors.GetErrorMessage(err),
			"code":  pkgerrors.GetErrorCode(err),
		})
		return
	}

	messages, err := h.history.Backlog(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Error loading conversation history",
			"conversation", string(key),
			"error", err.Error(),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "History is temporarily unavailable"})
		return
	}

	limit := h.maxMessages
	if limitParam := c.Query("limit"); limitParam != "" {
		requested, err := strconv.Atoi(limitParam)
		if err != nil || requested < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		if limit == 0 || (requested > 0 && requested < limit) {
			limit = requested
		}
	}
	if limit > 0 && limit < len(messages) {
		messages = messages[len(messages)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationKey": key,
		"messages":        messages,
	})
}
