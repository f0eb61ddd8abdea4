package api

import (
	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/handlers"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
)

func registerEmergencyRoutes(api *gin.RouterGroup, handler *handlers.EmergencyHandler) {
	worker := middleware.RequireRole(services.RoleWorker)
	admin := middleware.RequireRole(services.RoleAdmin)

	group := api.Group("/emergencies")
	{
		group.GET("", handler.List)
		group.GET("/:id", handler.Get)
		group.GET("/:id/timeline", handler.Timeline)
		group.POST("/:id/cancel", handler.Cancel)

		group.POST("/:id/accept", worker, handler.Accept)
		group.POST("/:id/decline", worker, handler.Decline)

		group.PATCH("/:id/status", admin, handler.UpdateStatus)
		group.POST("/:id/dispatch", admin, handler.Dispatch)
	}
}
