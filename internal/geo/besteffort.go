package geo

import (
	"context"
	"time"

	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// Lookup - внешний сервис геоданных
type Lookup interface {
	ReverseGeocode(ctx context.Context, p models.Point) (string, error)
	TravelTime(ctx context.Context, from, to models.Point) (time.Duration, error)
}

// BestEffort ограничивает время ожидания внешнего сервиса и превращает сбой
// в отсутствие результата: вызывающий код обязан обработать ok == false.
type BestEffort struct {
	lookup  Lookup
	timeout time.Duration
	logger  *logrus.Logger
}

// NewBestEffort создает обертку над внешним сервисом
func NewBestEffort(lookup Lookup, timeout time.Duration, logger *logrus.Logger) *BestEffort {
	return &BestEffort{lookup: lookup, timeout: timeout, logger: logger}
}

// Address возвращает адрес точки, если его удалось получить за отведенное время
func (b *BestEffort) Address(ctx context.Context, p models.Point) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	address, err := b.lookup.ReverseGeocode(ctx, p)
	if err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"longitude": p.Longitude,
			"latitude":  p.Latitude,
		}).Warn("Reverse geocoding unavailable, continuing without address")
		return "", false
	}
	return address, true
}

// TravelTime возвращает время в пути, если его удалось получить за отведенное время
func (b *BestEffort) TravelTime(ctx context.Context, from, to models.Point) (time.Duration, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	d, err := b.lookup.TravelTime(ctx, from, to)
	if err != nil {
		b.logger.WithError(err).Warn("Directions unavailable, continuing without ETA")
		return 0, false
	}
	return d, true
}
