package handlers

import (
	"messenger-service/internal/api/middleware"
	"messenger-service/internal/websocket"
	"messenger-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades an authenticated request; RequireWSAuth must run first
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "token is required")
		return
	}

	websocket.ServeWS(h.hub, c.Writer, c.Request, identity, nil)
}
