package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"messenger-service/internal/chat"
	"messenger-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type HistoryReader interface {
	ListBroadcastMessages(ctx context.Context) ([]chat.BroadcastMessage, error)
}

type MessageHandler struct {
	history HistoryReader
	logger  *slog.Logger
}

func NewMessageHandler(history HistoryReader, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{history: history, logger: logger}
}

// GetMessages returns the broadcast log oldest first
//
// @Summary List broadcast messages
// @Description Returns the retained broadcast log, oldest first
// @Tags messages
// @Produce json
// @Success 200 {array} chat.BroadcastMessage
// @Failure 503 {object} models.ErrorResponse
// @Router /messages [get]
func (h *MessageHandler) GetMessages(c *gin.Context) {
	messages, err := h.history.ListBroadcastMessages(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list messages", "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.MsgStorageUnavailable, "")
		return
	}
	if messages == nil {
		messages = []chat.BroadcastMessage{}
	}
	c.JSON(http.StatusOK, messages)
}
