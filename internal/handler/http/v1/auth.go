package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/auth"
	"github.com/shenikar/emergency_dispatch/internal/service"
	"github.com/sirupsen/logrus"
)

const userIDKey = "userID"

// JWTAuthMiddleware - middleware для аутентификации по bearer-токену
func JWTAuthMiddleware(presence service.PresenceService, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractBearer(c.GetHeader("Authorization"))

		user, err := presence.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, log.WithField("path", c.FullPath()), err)
			return
		}

		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

// currentUserID возвращает ID пользователя, установленный middleware
func currentUserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
