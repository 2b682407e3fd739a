package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"peer-chat-app/backend/internal/chat"
	pkgerrors "peer-chat-app/backend/pkg/errors"
	"peer-chat-app/backend/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// ServeWs upgrades the request and binds the connection to the participant
// authenticated by the token. The token comes from the `token` query
// parameter (browser WebSocket clients cannot set headers) or the
// Authorization header.
func ServeWs(hub *Hub, jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = c.GetHeader("Authorization")
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.LogError(err, "websocket upgrade failed")
			return
		}
		conn.EnableWriteCompression(true)

		client := &Client{
			id:          uuid.New().String(),
			participant: chat.ParticipantID(strconv.FormatUint(uint64(claims.UserID), 10)),
			conn:        conn,
			send:        make(chan []byte, 256),
			hub:         hub,
		}

		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// errorCode extracts the machine-readable code from an AppError.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return pkgerrors.GetErrorCode(err)
}
