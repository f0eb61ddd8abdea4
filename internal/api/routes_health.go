package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/app"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/handlers"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if !cfg.Monitoring.Health.Enabled || manager == nil {
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	handler := handlers.NewHealthHandler(manager)
	r.GET("/health", handler.Ready)
	r.GET("/health/live", handler.Live)
	r.GET("/health/ready", handler.Ready)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
