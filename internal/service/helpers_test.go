package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/shenikar/emergency_dispatch/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"
)

// fixedNow - фиксированное время для детерминированных проверок
var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

// testDeps - набор моков зависимостей сервисов
type testDeps struct {
	incidents     *mocks.MockIncidentRepository
	users         *mocks.MockUserRepository
	notifications *mocks.MockNotificationRepository
	pusher        *mocks.MockPusher
	geocoder      *mocks.MockGeocoder
	router        *mocks.MockRouter
}

func newTestDeps(t *testing.T) *testDeps {
	ctrl := gomock.NewController(t)
	return &testDeps{
		incidents:     mocks.NewMockIncidentRepository(ctrl),
		users:         mocks.NewMockUserRepository(ctrl),
		notifications: mocks.NewMockNotificationRepository(ctrl),
		pusher:        mocks.NewMockPusher(ctrl),
		geocoder:      mocks.NewMockGeocoder(ctrl),
		router:        mocks.NewMockRouter(ctrl),
	}
}

func newTestDispatchService(t *testing.T) (*dispatchService, *testDeps) {
	d := newTestDeps(t)
	svc := NewDispatchService(d.incidents, d.users, d.notifications, d.pusher, d.geocoder, DispatchConfig{
		RadiusMeters:      5000,
		LocationFreshness: 30 * time.Minute,
	}, newTestLogger()).(*dispatchService)
	svc.now = func() time.Time { return fixedNow }
	return svc, d
}

func newTestIncidentService(t *testing.T) (*incidentService, *testDeps) {
	d := newTestDeps(t)
	svc := NewIncidentService(d.incidents, d.users, d.notifications, d.pusher, d.router, newTestLogger()).(*incidentService)
	svc.now = func() time.Time { return fixedNow }
	return svc, d
}
