package handlers

import (
	"engagement-service/internal/websocket"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
}

func NewWSHandler(hub *websocket.Hub, upgrader *gorillaws.Upgrader) *WSHandler {
	return &WSHandler{hub: hub, upgrader: upgrader}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Establish a WebSocket connection for activity, engagement updates and alerts. The optional sessionId scopes an observer connection before it sends a connect frame.
// @Tags websocket
// @Param sessionId query string false "Session to observe"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Failure 400 "Bad request - not a websocket handshake"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWS(h.hub, h.upgrader, c.Writer, c.Request, c.Query("sessionId"))
}
