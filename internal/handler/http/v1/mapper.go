package v1

import (
	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/models"
)

// DTOToIncidentReport преобразует DTO создания в доменный запрос
func DTOToIncidentReport(dto CreateEmergencyRequest, creatorID uuid.UUID) models.IncidentReport {
	return models.IncidentReport{
		CreatorID:   creatorID,
		Type:        models.IncidentType(dto.EmergencyType),
		Description: dto.Description,
		Point:       models.Point{Longitude: *dto.Longitude, Latitude: *dto.Latitude},
		Address:     dto.Address,
	}
}

// ModelToEmergencyResponse преобразует доменную модель в DTO для ответа
func ModelToEmergencyResponse(model *models.Incident) *EmergencyResponse {
	responders := make([]ResponderResponse, len(model.Responders))
	for i, r := range model.Responders {
		responders[i] = modelToResponderResponse(r)
	}
	return &EmergencyResponse{
		ID:            model.ID,
		CreatedBy:     model.CreatedBy,
		EmergencyType: string(model.Type),
		Description:   model.Description,
		Location: LocationResponse{
			Longitude: model.Location.Longitude,
			Latitude:  model.Location.Latitude,
			Address:   model.Location.Address,
		},
		Status:     string(model.Status),
		Responders: responders,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
		ResolvedAt: model.ResolvedAt,
	}
}

// ModelsToEmergencyResponses преобразует слайс моделей в слайс DTO
func ModelsToEmergencyResponses(models []*models.Incident) []*EmergencyResponse {
	responses := make([]*EmergencyResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToEmergencyResponse(model)
	}
	return responses
}

// DetailsToEmergencyResponse добавляет к DTO данные создателя и участников
func DetailsToEmergencyResponse(details *models.IncidentDetails) *EmergencyResponse {
	resp := ModelToEmergencyResponse(details.Incident)
	resp.Creator = summaryToResponse(details.Creator)
	users := make(map[uuid.UUID]*models.UserSummary, len(details.ResponderDetails))
	for _, rd := range details.ResponderDetails {
		users[rd.UserID] = rd.User
	}
	for i := range resp.Responders {
		resp.Responders[i].User = summaryToResponse(users[resp.Responders[i].UserID])
	}
	return resp
}

// ResultToDispatchResponse преобразует результат рассылки
func ResultToDispatchResponse(result *models.DispatchResult) *DispatchResponse {
	return &DispatchResponse{
		Emergency:     ModelToEmergencyResponse(result.Incident),
		NotifiedUsers: result.NotifiedUsers,
	}
}

// ModelToNotificationResponse преобразует уведомление
func ModelToNotificationResponse(model *models.Notification) *NotificationResponse {
	return &NotificationResponse{
		ID:          model.ID,
		EmergencyID: model.IncidentID,
		Type:        string(model.Type),
		Title:       model.Title,
		Message:     model.Message,
		Status:      string(model.Status),
		SentAt:      model.SentAt,
		ReadAt:      model.ReadAt,
		CreatedAt:   model.CreatedAt,
	}
}

// ModelsToNotificationResponses преобразует слайс уведомлений
func ModelsToNotificationResponses(models []*models.Notification) []*NotificationResponse {
	responses := make([]*NotificationResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToNotificationResponse(model)
	}
	return responses
}

func modelToResponderResponse(r models.Responder) ResponderResponse {
	resp := ResponderResponse{
		UserID:      r.UserID,
		Status:      string(r.Status),
		NotifiedAt:  r.NotifiedAt,
		RespondedAt: r.RespondedAt,
		ArrivedAt:   r.ArrivedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.ETA != nil {
		resp.ETA = &ETAResponse{Seconds: r.ETA.Seconds, Timestamp: r.ETA.Timestamp}
	}
	if r.Feedback != nil {
		resp.Feedback = &FeedbackResponse{Rating: r.Feedback.Rating, Comment: r.Feedback.Comment}
	}
	return resp
}

func summaryToResponse(s *models.UserSummary) *UserSummaryResponse {
	if s == nil {
		return nil
	}
	resp := &UserSummaryResponse{ID: s.ID, Name: s.Name, Phone: s.Phone}
	if s.Location != nil {
		lng, lat := s.Location.Longitude, s.Location.Latitude
		resp.Longitude, resp.Latitude = &lng, &lat
	}
	return resp
}
