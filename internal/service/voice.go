package service

import (
	"strings"

	"github.com/shenikar/emergency_dispatch/internal/models"
)

// voiceKeywords - таблица ключевых слов. Порядок важен: побеждает первое совпадение.
var voiceKeywords = []struct {
	typ      models.IncidentType
	keywords []string
}{
	{models.IncidentTypeFire, []string{"fire", "burning", "smoke", "flames"}},
	{models.IncidentTypeMedical, []string{"medical", "collapsed", "injured", "heart attack", "breathing", "unconscious"}},
	{models.IncidentTypeSecurity, []string{"security", "threat", "suspicious", "unauthorized", "break-in"}},
	{models.IncidentTypeNaturalDisaster, []string{"flood", "earthquake", "storm", "hurricane", "tornado", "tsunami"}},
	{models.IncidentTypeOther, []string{"accident", "emergency", "help", "danger"}},
}

// ClassifyTranscript определяет тип происшествия по тексту; без совпадений - other
func ClassifyTranscript(text string) models.IncidentType {
	lower := strings.ToLower(text)
	for _, entry := range voiceKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.typ
			}
		}
	}
	return models.IncidentTypeOther
}
