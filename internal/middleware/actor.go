package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/errors"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

// CtxActorKey holds the services.Actor resolved for the request.
const CtxActorKey = "actor"

// Actor resolves the caller's role and worker profile once per request. Anonymous
// requests get a zero Actor.
func Actor(directory services.WorkerDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			c.Set(CtxActorKey, services.Actor{})
			c.Next()
			return
		}

		actor, err := services.ResolveActor(c.Request.Context(), directory, userID, c.GetString(CtxRoleKey))
		if err != nil {
			logger.WithModule("http").Error("resolve actor", zap.String("user_id", userID), zap.Error(err))
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		c.Set(CtxActorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by the Actor middleware.
func ActorFrom(c *gin.Context) services.Actor {
	if value, ok := c.Get(CtxActorKey); ok {
		if actor, ok := value.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{UserID: c.GetString(CtxUserIDKey), Role: c.GetString(CtxRoleKey)}
}

// RequireRole rejects callers whose resolved role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor.UserID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
