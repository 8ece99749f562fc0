// Package geo - клиент Mapbox для обратного геокодирования и расчета маршрутов.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/metrics"
	"github.com/shenikar/emergency_dispatch/internal/models"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrNoResult - сервис ответил, но не нашел адрес или маршрут
var ErrNoResult = errors.New("no result")

// MapboxClient - HTTP-клиент Mapbox с автоматическим выключателем на каждый API
type MapboxClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client

	geocodeBreaker    *gobreaker.CircuitBreaker[string]
	directionsBreaker *gobreaker.CircuitBreaker[float64]
}

// BreakerConfig - параметры выключателя
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig - 5 ошибок подряд размыкают цепь на 30 секунд
var DefaultBreakerConfig = BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second}

// NewMapboxClient создает клиент Mapbox
func NewMapboxClient(baseURL, accessToken string, httpClient *http.Client, bc BreakerConfig) *MapboxClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &MapboxClient{
		baseURL:           strings.TrimRight(baseURL, "/"),
		accessToken:       accessToken,
		httpClient:        httpClient,
		geocodeBreaker:    newBreaker[string]("mapbox-geocoding", bc),
		directionsBreaker: newBreaker[float64]("mapbox-directions", bc),
	}
}

func newBreaker[T any](name string, bc BreakerConfig) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:    name,
		Timeout: bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		// Пустой ответ - не отказ сервиса
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoResult)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
}

type geocodeResponse struct {
	Features []struct {
		PlaceName string `json:"place_name"`
	} `json:"features"`
}

type directionsResponse struct {
	Routes []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

// ReverseGeocode возвращает адрес для точки
func (c *MapboxClient) ReverseGeocode(ctx context.Context, p models.Point) (string, error) {
	address, err := c.geocodeBreaker.Execute(func() (string, error) {
		endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json", c.baseURL, formatPoint(p))
		var resp geocodeResponse
		if err := c.get(ctx, endpoint, url.Values{"limit": {"1"}}, &resp); err != nil {
			return "", err
		}
		if len(resp.Features) == 0 || resp.Features[0].PlaceName == "" {
			return "", ErrNoResult
		}
		return resp.Features[0].PlaceName, nil
	})
	if err != nil {
		return "", apperror.Dependency(err, "reverse geocoding failed")
	}
	return address, nil
}

// TravelTime возвращает время в пути на автомобиле между двумя точками
func (c *MapboxClient) TravelTime(ctx context.Context, from, to models.Point) (time.Duration, error) {
	seconds, err := c.directionsBreaker.Execute(func() (float64, error) {
		endpoint := fmt.Sprintf("%s/directions/v5/mapbox/driving/%s;%s", c.baseURL, formatPoint(from), formatPoint(to))
		var resp directionsResponse
		if err := c.get(ctx, endpoint, url.Values{"overview": {"simplified"}}, &resp); err != nil {
			return 0, err
		}
		if len(resp.Routes) == 0 {
			return 0, ErrNoResult
		}
		return resp.Routes[0].Duration, nil
	})
	if err != nil {
		return 0, apperror.Dependency(err, "directions lookup failed")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (c *MapboxClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.accessToken == "" {
		return errors.New("mapbox access token is not configured")
	}
	params.Set("access_token", c.accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create mapbox request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mapbox request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mapbox responded with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode mapbox response: %w", err)
	}
	return nil
}

func formatPoint(p models.Point) string {
	return fmt.Sprintf("%g,%g", p.Longitude, p.Latitude)
}
