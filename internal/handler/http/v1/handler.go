package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/shenikar/emergency_dispatch/internal/service"
	"github.com/sirupsen/logrus"
)

const defaultNearbyDistance = 5000

type Handler struct {
	dispatchService     service.DispatchService
	incidentService     service.IncidentService
	notificationService service.NotificationService
	presenceService     service.PresenceService
	logger              *logrus.Logger
	validate            *validator.Validate
}

func NewHandler(
	dispatchService service.DispatchService,
	incidentService service.IncidentService,
	notificationService service.NotificationService,
	presenceService service.PresenceService,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		dispatchService:     dispatchService,
		incidentService:     incidentService,
		notificationService: notificationService,
		presenceService:     presenceService,
		logger:              logger,
		validate:            validator.New(),
	}
}

// bindJSON разбирает и валидирует тело запроса; при ошибке ответ уже отправлен
func (h *Handler) bindJSON(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		respondBadRequest(c, log, "invalid request body", err)
		return false
	}
	if err := h.validate.Struct(input); err != nil {
		respondBadRequest(c, log, "validation failed", err)
		return false
	}
	return true
}

func parseIDParam(c *gin.Context, log *logrus.Entry, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, log, "invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// @Summary Report an emergency
// @Description Create an emergency and alert available users nearby. Requires bearer token.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param emergency body CreateEmergencyRequest true "Emergency report"
// @Success 201 {object} SuccessResponse{data=DispatchResponse}
// @Failure 400 {object} ErrorResponse "Invalid request body or validation error"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies [post]
func (h *Handler) createEmergency(c *gin.Context) {
	log := h.logger.WithField("method", "createEmergency")

	var input CreateEmergencyRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	result, err := h.dispatchService.ReportIncident(c.Request.Context(), DTOToIncidentReport(input, currentUserID(c)))
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusCreated, "Emergency reported", ResultToDispatchResponse(result))
}

// @Summary List active emergencies
// @Description Emergencies in status active or responding, newest first. Requires bearer token.
// @Tags Emergencies
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse{data=[]EmergencyResponse}
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies/active [get]
func (h *Handler) listActiveEmergencies(c *gin.Context) {
	log := h.logger.WithField("method", "listActiveEmergencies")

	incidents, err := h.incidentService.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "", ModelsToEmergencyResponses(incidents))
}

// @Summary List emergencies nearby
// @Description Active emergencies within maxDistance meters of a point. Requires bearer token.
// @Tags Emergencies
// @Produce json
// @Security BearerAuth
// @Param longitude query number true "Longitude"
// @Param latitude query number true "Latitude"
// @Param maxDistance query number false "Search radius in meters" default(5000)
// @Success 200 {object} SuccessResponse{data=[]EmergencyResponse}
// @Failure 400 {object} ErrorResponse "Invalid coordinates"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies/nearby [get]
func (h *Handler) listNearbyEmergencies(c *gin.Context) {
	log := h.logger.WithField("method", "listNearbyEmergencies")

	var query NearbyEmergenciesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBadRequest(c, log, "invalid query parameters", err)
		return
	}
	if err := h.validate.Struct(query); err != nil {
		respondBadRequest(c, log, "validation failed", err)
		return
	}
	if query.MaxDistance == 0 {
		query.MaxDistance = defaultNearbyDistance
	}

	p := models.Point{Longitude: *query.Longitude, Latitude: *query.Latitude}
	incidents, err := h.incidentService.ListNearby(c.Request.Context(), p, query.MaxDistance)
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "", ModelsToEmergencyResponses(incidents))
}

// @Summary Get emergency by ID
// @Description Emergency with creator and responder identities. Requires bearer token.
// @Tags Emergencies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Emergency ID"
// @Success 200 {object} SuccessResponse{data=EmergencyResponse}
// @Failure 400 {object} ErrorResponse "Invalid emergency ID"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Emergency not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies/{id} [get]
func (h *Handler) getEmergency(c *gin.Context) {
	log := h.logger.WithField("method", "getEmergency")
	id, ok := parseIDParam(c, log, "id")
	if !ok {
		return
	}
	log = log.WithField("id", id)

	details, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "", DetailsToEmergencyResponse(details))
}

// @Summary Respond to an emergency
// @Description Join as a responder or advance the caller's responder status by one step. Requires bearer token.
// @Tags Emergencies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Emergency ID"
// @Success 200 {object} SuccessResponse{data=EmergencyResponse}
// @Failure 400 {object} ErrorResponse "Invalid emergency ID"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Emergency not found"
// @Failure 409 {object} ErrorResponse "Emergency closed or concurrent update"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies/{id}/respond [post]
func (h *Handler) respondToEmergency(c *gin.Context) {
	log := h.logger.WithField("method", "respondToEmergency")
	id, ok := parseIDParam(c, log, "id")
	if !ok {
		return
	}
	log = log.WithField("id", id)

	incident, err := h.incidentService.Respond(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "Response recorded", ModelToEmergencyResponse(incident))
}

// @Summary Update emergency status
// @Description Change the status of an emergency. Allowed for the creator and active responders. Requires bearer token.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Emergency ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} SuccessResponse{data=EmergencyResponse}
// @Failure 400 {object} ErrorResponse "Invalid request body or transition"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not allowed to change status"
// @Failure 404 {object} ErrorResponse "Emergency not found"
// @Failure 409 {object} ErrorResponse "Concurrent update"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies/{id}/status [patch]
func (h *Handler) updateEmergencyStatus(c *gin.Context) {
	log := h.logger.WithField("method", "updateEmergencyStatus")
	id, ok := parseIDParam(c, log, "id")
	if !ok {
		return
	}
	log = log.WithField("id", id)

	var input UpdateStatusRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	incident, err := h.incidentService.UpdateStatus(c.Request.Context(), currentUserID(c), id, models.IncidentStatus(input.Status))
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "Emergency status updated", ModelToEmergencyResponse(incident))
}

// @Summary Leave feedback for a responder
// @Description Rate a responder of an emergency (1-5). Only the creator may leave feedback. Requires bearer token.
// @Tags Emergencies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Emergency ID"
// @Param responderId path string true "Responder user ID"
// @Param feedback body FeedbackRequest true "Feedback"
// @Success 200 {object} SuccessResponse{data=EmergencyResponse}
// @Failure 400 {object} ErrorResponse "Invalid request body"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Only the creator may leave feedback"
// @Failure 404 {object} ErrorResponse "Emergency or responder not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /emergencies/{id}/responders/{responderId}/feedback [post]
func (h *Handler) submitFeedback(c *gin.Context) {
	log := h.logger.WithField("method", "submitFeedback")
	id, ok := parseIDParam(c, log, "id")
	if !ok {
		return
	}
	responderID, ok := parseIDParam(c, log, "responderId")
	if !ok {
		return
	}
	log = log.WithFields(logrus.Fields{"id": id, "responder_id": responderID})

	var input FeedbackRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	fb := models.Feedback{Rating: input.Rating, Comment: input.Comment}
	incident, err := h.incidentService.SubmitFeedback(c.Request.Context(), currentUserID(c), id, responderID, fb)
	if err != nil {
		respondError(c, log, err)
		return
	}
	respondOK(c, http.StatusOK, "Feedback saved", ModelToEmergencyResponse(incident))
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
