package api

import (
	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/handlers"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/unread", handler.MarkUnread)
		group.DELETE("/:id", handler.Delete)

		group.POST("", middleware.RequireRole(services.RoleAdmin), handler.Create)
	}
}
