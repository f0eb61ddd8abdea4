package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/app"
	iauth "github.com/anandyadav-dev/HunarMitra-Backend/internal/auth"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/handlers"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/monitoring"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
)

// requestsPerMinute bounds every client per route; emergency intake has its own tighter limit.
const requestsPerMinute = 100

// Dependencies are the long-lived services the HTTP surface is built on.
type Dependencies struct {
	JWT           *iauth.JWTService
	Emergencies   *services.EmergencyService
	Devices       *services.DeviceService
	Notifications *services.NotificationService
	Directory     services.WorkerDirectory
	Hub           *realtime.Hub
	Health        *monitoring.HealthManager
	RateStore     middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.JWT == nil:
		return errors.New("jwt service must be provided")
	case d.Emergencies == nil:
		return errors.New("emergency service must be provided")
	case d.Devices == nil:
		return errors.New("device service must be provided")
	case d.Notifications == nil:
		return errors.New("notification service must be provided")
	case d.Directory == nil:
		return errors.New("worker directory must be provided")
	case d.Hub == nil:
		return errors.New("realtime hub must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the dispatch API.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore(nil)
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(rateStore, requestsPerMinute, time.Minute))

	registerHealthRoutes(r, cfg, deps.Health)

	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT)
	r.GET("/ws", realtimeHandler.Stream)
	r.GET("/ws/:stream", realtimeHandler.Stream)

	actor := middleware.Actor(deps.Directory)
	api := r.Group("/api")

	emergencyHandler := handlers.NewEmergencyHandler(deps.Emergencies, cfg.Emergency.Settings)
	// Intake accepts anonymous callers; a valid token attributes the request.
	api.POST("/emergencies", middleware.OptionalAuth(deps.JWT), actor, emergencyHandler.Create)

	authed := api.Group("")
	authed.Use(middleware.Auth(deps.JWT), actor)

	registerEmergencyRoutes(authed, emergencyHandler)
	registerDeviceRoutes(authed, handlers.NewDeviceHandler(deps.Devices))
	registerNotificationRoutes(authed, handlers.NewNotificationHandler(deps.Notifications))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
