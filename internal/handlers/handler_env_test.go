package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/anandyadav-dev/HunarMitra-Backend/internal/auth"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/database/testutil"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/models"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/queue"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/timeline"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

const (
	testLat = 26.8467
	testLng = 80.9462
)

type handlerEnv struct {
	db            *gorm.DB
	router        *gin.Engine
	jwt           *iauth.JWTService
	runner        *queue.Runner
	notifications *services.NotificationService
	settings      services.EmergencySettings
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &handlerEnv{
		db: testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()),
		settings: services.EmergencySettings{
			AutoAssign: true,
			Dispatch:   services.DispatchSettings{RadiusKm: 5},
		},
	}

	var err error
	env.jwt, err = iauth.NewJWTService(iauth.JWTConfig{Secret: "handler-test-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	tasks := queue.NewMemoryQueue(nil)
	recorder, err := timeline.NewGormRecorder(env.db)
	require.NoError(t, err)

	env.notifications, err = services.NewNotificationService(env.db, realtime.NewHub())
	require.NoError(t, err)
	dispatch, err := services.NewDispatchService(env.db, env.notifications, services.WithTimeline(recorder))
	require.NoError(t, err)
	emergencies, err := services.NewEmergencyService(env.db, tasks, env.notifications, services.WithTimeline(recorder))
	require.NoError(t, err)
	devices, err := services.NewDeviceService(env.db)
	require.NoError(t, err)
	directory, err := services.NewWorkerDirectory(env.db)
	require.NoError(t, err)

	env.runner = queue.NewRunner(tasks, queue.WithConcurrency(1))
	services.RegisterTaskHandlers(env.runner, dispatch, nil, env.settings.Dispatch, services.PushSettings{})

	emergencyHandler := NewEmergencyHandler(emergencies, func() services.EmergencySettings { return env.settings })
	deviceHandler := NewDeviceHandler(devices)
	notificationHandler := NewNotificationHandler(env.notifications)

	r := gin.New()
	r.Use(middleware.Recovery())
	api := r.Group("/api")
	api.POST("/emergencies", middleware.OptionalAuth(env.jwt), middleware.Actor(directory), emergencyHandler.Create)

	authed := api.Group("")
	authed.Use(middleware.Auth(env.jwt), middleware.Actor(directory))
	authed.GET("/emergencies", emergencyHandler.List)
	authed.GET("/emergencies/:id", emergencyHandler.Get)
	authed.GET("/emergencies/:id/timeline", emergencyHandler.Timeline)
	authed.POST("/emergencies/:id/accept", middleware.RequireRole(services.RoleWorker), emergencyHandler.Accept)
	authed.POST("/emergencies/:id/decline", middleware.RequireRole(services.RoleWorker), emergencyHandler.Decline)
	authed.POST("/emergencies/:id/cancel", emergencyHandler.Cancel)
	authed.PATCH("/emergencies/:id/status", middleware.RequireRole(services.RoleAdmin), emergencyHandler.UpdateStatus)
	authed.POST("/emergencies/:id/dispatch", middleware.RequireRole(services.RoleAdmin), emergencyHandler.Dispatch)

	authed.GET("/devices", deviceHandler.List)
	authed.POST("/devices", deviceHandler.Register)
	authed.POST("/devices/unregister", deviceHandler.Unregister)

	authed.GET("/notifications", notificationHandler.List)
	authed.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	authed.POST("/notifications/:id/read", notificationHandler.MarkRead)
	authed.POST("/notifications/:id/unread", notificationHandler.MarkUnread)
	authed.DELETE("/notifications/:id", notificationHandler.Delete)
	authed.POST("/notifications", middleware.RequireRole(services.RoleAdmin), notificationHandler.Create)

	env.router = r
	return env
}

func (e *handlerEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (e *handlerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) drain(t *testing.T) {
	t.Helper()
	_, err := e.runner.Drain(context.Background())
	require.NoError(t, err)
}

func (e *handlerEnv) seedWorker(t *testing.T, id string, lat, rating float64) {
	t.Helper()
	lng := testLng
	require.NoError(t, e.db.Create(&models.WorkerProfile{
		BaseModel:   models.BaseModel{ID: id},
		UserID:      "user-" + id,
		DisplayName: id,
		Latitude:    &lat,
		Longitude:   &lng,
		IsAvailable: true,
		Rating:      rating,
	}).Error)
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success, w.Body.String())

	raw, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorInfo {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	return *payload.Error
}
