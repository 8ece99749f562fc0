package geo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return logger
}

func TestReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoding/v5/mapbox.places/10,20.json", r.URL.Path)
		assert.Equal(t, "token", r.URL.Query().Get("access_token"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"features":[{"place_name":"Main St 1, Springfield"}]}`))
	}))
	defer srv.Close()

	client := NewMapboxClient(srv.URL, "token", srv.Client(), DefaultBreakerConfig)
	address, err := client.ReverseGeocode(context.Background(), models.Point{Longitude: 10, Latitude: 20})

	require.NoError(t, err)
	assert.Equal(t, "Main St 1, Springfield", address)
}

func TestReverseGeocode_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	client := NewMapboxClient(srv.URL, "token", srv.Client(), DefaultBreakerConfig)
	_, err := client.ReverseGeocode(context.Background(), models.Point{Longitude: 10, Latitude: 20})

	require.Error(t, err)
	assert.Equal(t, apperror.KindDependency, apperror.KindOf(err))
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestReverseGeocode_MissingToken(t *testing.T) {
	client := NewMapboxClient("http://127.0.0.1:1", "", nil, DefaultBreakerConfig)
	_, err := client.ReverseGeocode(context.Background(), models.Point{})

	require.Error(t, err)
	assert.ErrorContains(t, err, "access token is not configured")
}

func TestTravelTime_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/directions/v5/mapbox/driving/"))
		assert.Contains(t, r.URL.Path, "1,2;3,4")
		_, _ = w.Write([]byte(`{"routes":[{"duration":125.5,"distance":900}]}`))
	}))
	defer srv.Close()

	client := NewMapboxClient(srv.URL, "token", srv.Client(), DefaultBreakerConfig)
	d, err := client.TravelTime(context.Background(),
		models.Point{Longitude: 1, Latitude: 2}, models.Point{Longitude: 3, Latitude: 4})

	require.NoError(t, err)
	assert.Equal(t, 125500*time.Millisecond, d)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewMapboxClient(srv.URL, "token", srv.Client(), BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	for i := 0; i < 5; i++ {
		_, err := client.ReverseGeocode(context.Background(), models.Point{})
		require.Error(t, err)
	}

	// После размыкания запросы до сервера не доходят
	assert.Equal(t, int32(2), calls.Load())
}

func TestBestEffort_FallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewMapboxClient(srv.URL, "token", srv.Client(), DefaultBreakerConfig)
	be := NewBestEffort(client, time.Second, newTestLogger())

	address, ok := be.Address(context.Background(), models.Point{Longitude: 1, Latitude: 1})
	assert.False(t, ok)
	assert.Empty(t, address)

	_, ok = be.TravelTime(context.Background(), models.Point{}, models.Point{})
	assert.False(t, ok)
}

func TestBestEffort_BoundedWait(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewMapboxClient(srv.URL, "token", srv.Client(), DefaultBreakerConfig)
	be := NewBestEffort(client, 50*time.Millisecond, newTestLogger())

	start := time.Now()
	_, ok := be.Address(context.Background(), models.Point{})

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}
