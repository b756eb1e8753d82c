package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const forecastBody = `{
	"location": {"name": "Vancouver", "region": "British Columbia", "country": "Canada", "localtime": "2026-08-28 10:00"},
	"current": {
		"temp_c": 21.5, "condition": {"text": "Partly cloudy"}, "feelslike_c": 22.0,
		"humidity": 60, "wind_kph": 12.2, "wind_dir": "WSW", "pressure_mb": 1016.0,
		"precip_mm": 0.0, "uv": 5.0,
		"air_quality": {"us-epa-index": 1, "pm2_5": 4.1, "pm10": 6.0, "no2": 9.8, "o3": 54.0, "co": 210.3}
	},
	"forecast": {"forecastday": [
		{"date": "2026-08-28",
		 "day": {"maxtemp_c": 23.0, "mintemp_c": 14.0, "condition": {"text": "Sunny"}, "daily_chance_of_rain": 10},
		 "astro": {"sunrise": "06:21 AM", "sunset": "08:08 PM"}}
	]}
}`

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:            "test-key",
		BaseURL:           baseURL,
		ForecastDays:      3,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
		Burst:             100,
		MaxRetries:        2,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestForecastMapsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast.json", r.URL.Path)
		assert.Equal(t, "Vancouver, Canada", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		assert.Equal(t, "yes", r.URL.Query().Get("aqi"))
		w.Write([]byte(forecastBody))
	}))
	defer server.Close()

	report, err := testClient(t, server.URL).Forecast(context.Background(), "Vancouver, Canada")
	require.NoError(t, err)

	assert.Equal(t, "Vancouver", report.Location.Name)
	assert.Equal(t, "Canada", report.Location.Country)
	assert.Equal(t, 21.5, report.Current.Temperature)
	assert.Equal(t, "Partly cloudy", report.Current.Condition)
	assert.Equal(t, 60, report.Current.Humidity)
	require.Len(t, report.Forecast, 1)
	assert.Equal(t, "Sunny", report.Forecast[0].Condition)
	assert.Equal(t, 10, report.Forecast[0].ChanceOfRain)
	assert.Equal(t, "06:21 AM", report.Forecast[0].Sunrise)
}

func TestForecastCityNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"No matching location found."}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).Forecast(context.Background(), "Nowhereville")
	assert.ErrorIs(t, err, ErrCityNotFound)
}

func TestForecastRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(forecastBody))
	}))
	defer server.Close()

	report, err := testClient(t, server.URL).Forecast(context.Background(), "Vancouver, Canada")
	require.NoError(t, err)
	assert.Equal(t, "Vancouver", report.Location.Name)
	assert.Equal(t, int64(2), calls.Load())
}

func TestAirQualityMapsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/current.json", r.URL.Path)
		w.Write([]byte(forecastBody))
	}))
	defer server.Close()

	aq, err := testClient(t, server.URL).AirQuality(context.Background(), "Vancouver, Canada")
	require.NoError(t, err)

	assert.Equal(t, "Vancouver", aq.City)
	assert.Equal(t, "Canada", aq.Country)
	assert.Equal(t, 1, aq.AQI)
	assert.Equal(t, 4.1, aq.PM25)
	assert.Equal(t, 210.3, aq.CO)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.Error(t, err)
}
