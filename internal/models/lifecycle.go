package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
)

// IncidentStatus - статус происшествия
type IncidentStatus string

const (
	IncidentActive     IncidentStatus = "active"
	IncidentResponding IncidentStatus = "responding"
	IncidentResolved   IncidentStatus = "resolved"
	IncidentCancelled  IncidentStatus = "cancelled"
)

// Valid проверяет, что статус входит в перечисление
func (s IncidentStatus) Valid() bool {
	_, ok := incidentTransitions[s]
	return ok
}

// Terminal - resolved и cancelled
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentCancelled
}

// incidentTransitions - допустимые ручные переходы статуса происшествия.
// Из терминальных статусов выхода нет, обратно в active вернуться нельзя.
var incidentTransitions = map[IncidentStatus]map[IncidentStatus]bool{
	IncidentActive: {
		IncidentResponding: true,
		IncidentResolved:   true,
		IncidentCancelled:  true,
	},
	IncidentResponding: {
		IncidentResolved:  true,
		IncidentCancelled: true,
	},
	IncidentResolved:  {},
	IncidentCancelled: {},
}

// CanTransition сообщает, разрешен ли переход from -> to
func (s IncidentStatus) CanTransition(to IncidentStatus) bool {
	return incidentTransitions[s][to]
}

// ResponderStatus - статус участника
type ResponderStatus string

const (
	ResponderNotified  ResponderStatus = "notified"
	ResponderEnRoute   ResponderStatus = "en_route"
	ResponderOnScene   ResponderStatus = "on_scene"
	ResponderCompleted ResponderStatus = "completed"
)

// responderAdvance - следующий статус участника на действие "respond".
// completed переходит сам в себя: повторное действие ничего не меняет.
var responderAdvance = map[ResponderStatus]ResponderStatus{
	ResponderNotified:  ResponderEnRoute,
	ResponderEnRoute:   ResponderOnScene,
	ResponderOnScene:   ResponderCompleted,
	ResponderCompleted: ResponderCompleted,
}

// Next возвращает следующий статус
func (s ResponderStatus) Next() (ResponderStatus, bool) {
	next, ok := responderAdvance[s]
	return next, ok
}

// Active - участник в пути или на месте
func (s ResponderStatus) Active() bool {
	return s == ResponderEnRoute || s == ResponderOnScene
}

// ETA - расчетное время прибытия
type ETA struct {
	Seconds   float64   `json:"seconds"`
	Timestamp time.Time `json:"timestamp"`
}

// Feedback - отзыв о работе участника
type Feedback struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Responder - запись участника внутри происшествия
type Responder struct {
	UserID      uuid.UUID       `json:"userId"`
	Status      ResponderStatus `json:"status"`
	NotifiedAt  *time.Time      `json:"notifiedAt,omitempty"`
	RespondedAt *time.Time      `json:"respondedAt,omitempty"`
	ArrivedAt   *time.Time      `json:"arrivedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	ETA         *ETA            `json:"eta,omitempty"`
	Feedback    *Feedback       `json:"feedback,omitempty"`
}

// stamp выставляет отметку времени, соответствующую статусу, только один раз
func (r *Responder) stamp(status ResponderStatus, now time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := now
			*field = &t
		}
	}
	switch status {
	case ResponderNotified:
		set(&r.NotifiedAt)
	case ResponderEnRoute:
		set(&r.RespondedAt)
	case ResponderOnScene:
		set(&r.ArrivedAt)
	case ResponderCompleted:
		set(&r.CompletedAt)
	}
}

// RespondOutcome - результат применения действия "respond"
type RespondOutcome struct {
	Responder Responder
	// Created - запись участника создана этим действием
	Created bool
	// Changed - статус участника изменился
	Changed bool
	// IncidentStatusChanged - происшествие перешло active -> responding
	IncidentStatusChanged bool
}

// EnteredEnRoute сообщает, что участник только что перешел в en_route
func (o RespondOutcome) EnteredEnRoute() bool {
	return o.Changed && o.Responder.Status == ResponderEnRoute
}

// ApplyRespond выполняет один шаг автомата для пользователя.
// Новый участник сразу получает en_route: вызвавшись сам, он уже в пути.
func (i *Incident) ApplyRespond(userID uuid.UUID, now time.Time) (RespondOutcome, error) {
	if i.IsClosed() {
		return RespondOutcome{}, apperror.Conflict("this emergency has already been %s", i.Status)
	}

	var out RespondOutcome
	r := i.Responder(userID)
	if r == nil {
		i.Responders = append(i.Responders, Responder{UserID: userID, Status: ResponderEnRoute})
		r = &i.Responders[len(i.Responders)-1]
		r.stamp(ResponderNotified, now)
		r.stamp(ResponderEnRoute, now)
		out.Created = true
		out.Changed = true
	} else {
		next, ok := r.Status.Next()
		if !ok {
			return RespondOutcome{}, apperror.Conflict("responder is in unknown status %q", r.Status)
		}
		if next != r.Status {
			r.Status = next
			r.stamp(next, now)
			out.Changed = true
		}
	}

	if i.Status == IncidentActive && len(i.Responders) > 0 {
		i.Status = IncidentResponding
		out.IncidentStatusChanged = true
	}

	out.Responder = *r
	return out, nil
}

// SetResponderETA прикрепляет ETA к записи участника
func (i *Incident) SetResponderETA(userID uuid.UUID, eta ETA) bool {
	r := i.Responder(userID)
	if r == nil {
		return false
	}
	r.ETA = &eta
	return true
}

// ApplyStatus выполняет ручную смену статуса.
// Возвращает false без ошибки, если статус уже установлен.
func (i *Incident) ApplyStatus(next IncidentStatus, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, apperror.Validation("invalid status %q", next)
	}
	if i.IsClosed() {
		return false, apperror.Conflict("this emergency has already been %s", i.Status)
	}
	if i.Status == next {
		return false, nil
	}
	if !i.Status.CanTransition(next) {
		return false, apperror.Conflict("cannot change status from %s to %s", i.Status, next)
	}

	i.Status = next
	if next == IncidentResolved {
		t := now
		i.ResolvedAt = &t
	}
	return true, nil
}

// ApplyFeedback сохраняет отзыв о работе участника
func (i *Incident) ApplyFeedback(responderID uuid.UUID, fb Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return apperror.Validation("rating must be between 1 and 5")
	}
	r := i.Responder(responderID)
	if r == nil {
		return apperror.NotFound("responder %s not found", responderID)
	}
	r.Feedback = &fb
	return nil
}
