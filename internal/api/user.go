package api

import (
	"fmt"
	"net/http"
	"strconv"

	"peer-chat-app/backend/internal/chat"
	"peer-chat-app/backend/internal/models"
	"peer-chat-app/backend/internal/service"
	"peer-chat-app/backend/pkg/cache"
	"peer-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the user directory
type UserHandler struct {
	service  *service.UserService
	presence *chat.Presence
	cache    *cache.Cache
	logger   *logger.Logger
}

// NewUserHandler creates a new user directory handler
func NewUserHandler(userService *service.UserService, presence *chat.Presence, log *logger.Logger) *UserHandler {
	return &UserHandler{
		service:  userService,
		presence: presence,
		cache:    cache.NewCache(),
		logger:   log,
	}
}

// GetUser returns a single user profile by ID. Profiles are cached briefly;
// the online flag is looked up fresh on every request.
func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	resp, err := h.lookupUser(uint(id))
	if err != nil {
		if err == service.ErrUserNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.logger.Error("Error fetching user", "id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	resp.Online = h.isOnline(c, resp.ID)

	c.JSON(http.StatusOK, resp)
}

// ListUsers returns the full directory with presence flags
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers()
	if err != nil {
		h.logger.Error("Error listing users", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	responses := make([]models.UserResponse, 0, len(users))
	for i := range users {
		resp := users[i].ToResponse()
		resp.Online = h.isOnline(c, resp.ID)
		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, gin.H{"users": responses})
}

func (h *UserHandler) lookupUser(id uint) (models.UserResponse, error) {
	cacheKey := fmt.Sprintf("user:%d", id)
	if cached, found := h.cache.Get(cacheKey); found {
		if resp, ok := cached.(models.UserResponse); ok {
			return resp, nil
		}
	}

	user, err := h.service.GetUserByID(id)
	if err != nil {
		return models.UserResponse{}, err
	}

	resp := user.ToResponse()
	h.cache.Set(cacheKey, resp)
	return resp, nil
}

func (h *UserHandler) isOnline(c *gin.Context, id uint) bool {
	if h.presence == nil {
		return false
	}
	participant := chat.ParticipantID(strconv.FormatUint(uint64(id), 10))
	return h.presence.IsOnline(c.Request.Context(), participant)
}
