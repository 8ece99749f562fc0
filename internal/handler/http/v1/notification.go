package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary List notifications
// @Description Latest 50 notifications of the current user, newest first. Requires bearer token.
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse{data=[]NotificationResponse}
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /notifications [get]
func (h *Handler) listNotifications(c *gin.Context) {
	log := h.logger.WithField("method", "listNotifications")

	list, err := h.notificationService.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "", ModelsToNotificationResponses(list))
}

// @Summary Mark notification as read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} SuccessResponse{data=NotificationResponse}
// @Failure 400 {object} ErrorResponse "Invalid notification ID"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Notification not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /notifications/{id}/read [patch]
func (h *Handler) markNotificationRead(c *gin.Context) {
	log := h.logger.WithField("method", "markNotificationRead")
	id, ok := parseIDParam(c, log, "id")
	if !ok {
		return
	}

	n, err := h.notificationService.MarkRead(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, log.WithField("id", id), err)
		return
	}
	respondOK(c, http.StatusOK, "Notification marked as read", ModelToNotificationResponse(n))
}

// @Summary Mark all notifications as read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse{data=MarkAllReadResponse}
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /notifications/read-all [patch]
func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	log := h.logger.WithField("method", "markAllNotificationsRead")

	count, err := h.notificationService.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "All notifications marked as read", MarkAllReadResponse{UpdatedCount: count})
}
