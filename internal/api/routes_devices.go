package api

import (
	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/handlers"
)

func registerDeviceRoutes(api *gin.RouterGroup, handler *handlers.DeviceHandler) {
	group := api.Group("/devices")
	{
		group.GET("", handler.List)
		group.POST("", handler.Register)
		group.POST("/unregister", handler.Unregister)
	}
}
