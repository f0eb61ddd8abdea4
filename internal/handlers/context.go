package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireActor returns the authenticated actor or writes 401.
func requireActor(c *gin.Context) (services.Actor, bool) {
	actor := middleware.ActorFrom(c)
	if actor.UserID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return actor, false
	}
	return actor, true
}

func pathID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}
