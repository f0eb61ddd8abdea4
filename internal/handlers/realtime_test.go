package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	iauth "github.com/anandyadav-dev/HunarMitra-Backend/internal/auth"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
)

func newRealtimeRouter(t *testing.T) (*gin.Engine, *realtime.Hub, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	r := gin.New()
	handler := NewRealtimeHandler(hub, jwtSvc)
	r.GET("/ws", handler.Stream)
	r.GET("/ws/:stream", handler.Stream)
	return r, hub, jwtSvc
}

func TestRealtimeHandlerUnauthorizedWithoutToken(t *testing.T) {
	r, _, _ := newRealtimeRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/notifications", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeHandlerRestrictsEmergencyStream(t *testing.T) {
	r, _, jwtSvc := newRealtimeRouter(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1", Role: "user"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/emergencies?token="+token, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/unknown?token="+token, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRealtimeHandlerDeliversNotifications(t *testing.T) {
	r, hub, jwtSvc := newRealtimeRouter(t)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return hub.Subscribers(realtime.StreamNotifications) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(realtime.StreamNotifications, "user-1", realtime.Message{Event: "notification.created"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var message realtime.Message
	require.NoError(t, conn.ReadJSON(&message))
	require.Equal(t, realtime.StreamNotifications, message.Stream)
	require.Equal(t, "notification.created", message.Event)
}
