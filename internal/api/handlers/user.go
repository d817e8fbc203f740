package handlers

import (
	"context"
	"net/http"

	"messenger-service/internal/chat"

	"github.com/gin-gonic/gin"
)

type PresenceReader interface {
	Snapshot(ctx context.Context) []chat.PresenceEntry
}

type UserHandler struct {
	presence PresenceReader
}

func NewUserHandler(presence PresenceReader) *UserHandler {
	return &UserHandler{presence: presence}
}

// GetUsers returns every known user with an online flag
//
// @Summary List users
// @Description Returns every registered user and whether they are connected
// @Tags users
// @Produce json
// @Success 200 {array} chat.PresenceEntry
// @Router /users [get]
func (h *UserHandler) GetUsers(c *gin.Context) {
	users := h.presence.Snapshot(c.Request.Context())
	if users == nil {
		users = []chat.PresenceEntry{}
	}
	c.JSON(http.StatusOK, users)
}
