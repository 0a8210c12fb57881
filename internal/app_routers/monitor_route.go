package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/configuration"
)

// MonitorRouters sets up the hub statistics route
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorGroup := router.Group("/api/monitor")
	{
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
