package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const healthText = "Messenger server is running"

type HubStats interface {
	ClientCount() int
	ErrorCounts() map[string]int
}

type HealthHandler struct {
	stats HubStats
}

func NewHealthHandler(stats HubStats) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// @Summary Liveness text
// @Tags health
// @Produce plain
// @Success 200 {string} string
// @Router / [get]
func (h *HealthHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, healthText)
}

// Health reports live connections and hub error counters
//
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": h.stats.ClientCount(),
		"errors":  h.stats.ErrorCounts(),
	})
}
