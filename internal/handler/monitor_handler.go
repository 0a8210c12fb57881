package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/hub"
)

// MonitorHandler handles the hub statistics endpoint
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
}

type monitorHandler struct {
	monitorService *hub.MonitorService
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(monitorService *hub.MonitorService) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
	}
}

// GetHubStats returns current hub statistics
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	stats := h.monitorService.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
	})
}
