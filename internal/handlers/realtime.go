package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/anandyadav-dev/HunarMitra-Backend/internal/auth"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/realtime"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket streams.
// Browsers cannot set headers on websocket requests, so the token may also come from
// the query string.
type RealtimeHandler struct {
	hub *realtime.Hub
	jwt *iauth.JWTService
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt}
}

// Stream validates the caller and subscribes it to the requested streams. The emergency
// status feed is restricted to administrators; everyone else gets their notifications.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	allowed := map[string]struct{}{realtime.StreamNotifications: {}}
	if strings.EqualFold(claims.Role, services.RoleAdmin) {
		allowed[realtime.StreamEmergencies] = struct{}{}
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}
	for _, stream := range streams {
		if _, ok := allowed[stream]; !ok {
			response.Error(c, errors.ErrForbidden)
			return
		}
	}

	h.hub.Serve(claims.UserID, streams, allowed, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	var streams []string
	add := func(value string) {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			return
		}
		for _, existing := range streams {
			if existing == value {
				return
			}
		}
		streams = append(streams, value)
	}

	add(c.Param("stream"))
	for _, value := range c.QueryArray("stream") {
		add(value)
	}
	for _, part := range strings.Split(c.Query("streams"), ",") {
		add(part)
	}
	return streams
}
