package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Маршрут Health-check доступен без токена
	api.GET("/system/health", h.healthCheck)

	protected := api.Group("")
	protected.Use(JWTAuthMiddleware(h.presenceService, h.logger))

	emergencies := protected.Group("/emergencies")
	{
		emergencies.POST("", h.createEmergency)
		emergencies.GET("/active", h.listActiveEmergencies)
		emergencies.GET("/nearby", h.listNearbyEmergencies)
		emergencies.GET("/:id", h.getEmergency)
		emergencies.POST("/:id/respond", h.respondToEmergency)
		emergencies.PATCH("/:id/status", h.updateEmergencyStatus)
		emergencies.POST("/:id/responders/:responderId/feedback", h.submitFeedback)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", h.listNotifications)
		notifications.PATCH("/read-all", h.markAllNotificationsRead)
		notifications.PATCH("/:id/read", h.markNotificationRead)
	}

	users := protected.Group("/users/me")
	{
		users.PATCH("/location", h.updateLocation)
		users.PATCH("/availability", h.updateAvailability)
	}
}
