package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/emergency_dispatch/internal/models"
)

// @Summary Update current location
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param location body UpdateLocationRequest true "Current coordinates"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse "Invalid coordinates"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /users/me/location [patch]
func (h *Handler) updateLocation(c *gin.Context) {
	log := h.logger.WithField("method", "updateLocation")

	var input UpdateLocationRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	p := models.Point{Longitude: *input.Longitude, Latitude: *input.Latitude}
	if err := h.presenceService.UpdateLocation(c.Request.Context(), currentUserID(c), p); err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "Location updated", nil)
}

// @Summary Update availability
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param availability body UpdateAvailabilityRequest true "Availability flag"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse "Invalid request body"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /users/me/availability [patch]
func (h *Handler) updateAvailability(c *gin.Context) {
	log := h.logger.WithField("method", "updateAvailability")

	var input UpdateAvailabilityRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	if err := h.presenceService.UpdateAvailability(c.Request.Context(), currentUserID(c), *input.AvailabilityStatus); err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "Availability updated", nil)
}
