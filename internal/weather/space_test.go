package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testSpaceClient(url string) *SpaceClient {
	return NewSpaceClient(SpaceConfig{
		KPIndexURL: url,
		Timeout:    5 * time.Second,
		CacheTTL:   time.Hour,
		CacheSize:  4,
	}, zap.NewNop())
}

func TestSpaceWeatherQuietConditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"time_tag": "2026-08-28T10:00:00", "kp": "2.33"}]`))
	}))
	defer server.Close()

	sw := testSpaceClient(server.URL).Current(context.Background())
	assert.Equal(t, 2.33, sw.KPIndex)
	assert.False(t, sw.AuroraVisible)
	assert.Equal(t, "normal", sw.SolarRadiation)
	assert.Equal(t, "Aurora not likely visible", sw.Forecast)
}

func TestSpaceWeatherStormConditions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"time_tag": "2026-08-28T10:00:00", "kp": 6.67}]`))
	}))
	defer server.Close()

	sw := testSpaceClient(server.URL).Current(context.Background())
	assert.Equal(t, 6.67, sw.KPIndex)
	assert.True(t, sw.AuroraVisible)
	assert.Equal(t, "elevated", sw.SolarRadiation)
	assert.Equal(t, "Aurora may be visible", sw.Forecast)
}

func TestSpaceWeatherCached(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"time_tag": "2026-08-28T10:00:00", "kp": "1.00"}]`))
	}))
	defer server.Close()

	client := testSpaceClient(server.URL)
	ctx := context.Background()

	client.Current(ctx)
	client.Current(ctx)
	client.Current(ctx)

	assert.Equal(t, int64(1), calls.Load(), "repeat calls within the TTL must be served from cache")
}

func TestSpaceWeatherDegradedFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sw := testSpaceClient(server.URL).Current(context.Background())
	assert.Equal(t, 0.0, sw.KPIndex)
	assert.False(t, sw.AuroraVisible)
	assert.Equal(t, "normal", sw.SolarRadiation)
	assert.Equal(t, "Space weather data temporarily unavailable", sw.Forecast)
}

func TestSpaceWeatherInvalidKpDefaultsToZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"time_tag": "2026-08-28T10:00:00", "kp": "not-a-number"}]`))
	}))
	defer server.Close()

	sw := testSpaceClient(server.URL).Current(context.Background())
	assert.Equal(t, 0.0, sw.KPIndex)
	assert.Equal(t, "normal", sw.SolarRadiation)
}
