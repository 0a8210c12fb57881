package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/configuration"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/handler"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/api")
	chatRoute.Use(handler.RequireAuth(container.Verifier))
	{
		chatRoute.GET("/conversations", container.ChatHandler.ListConversations)
		chatRoute.GET("/conversations/:storeId/messages", container.ChatHandler.ListMessages)
		chatRoute.POST("/conversations/:storeId/messages", container.ChatHandler.PostMessage)
		chatRoute.PUT("/messages/:id/read", container.ChatHandler.MarkRead)
		chatRoute.DELETE("/messages/:id", container.ChatHandler.DeleteMessage)
	}
}
