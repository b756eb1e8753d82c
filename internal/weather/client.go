package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrCityNotFound is returned when the upstream cannot resolve the city
var ErrCityNotFound = errors.New("city not found")

// Config contains the WeatherAPI.com client configuration
type Config struct {
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	ForecastDays      int           `yaml:"forecast_days" mapstructure:"forecast_days"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// Client fetches forecast and air quality data from WeatherAPI.com. Calls
// are rate limited client-side and retried on transient failures.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a WeatherAPI client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("weather API key not configured")
	}
	if config.ForecastDays <= 0 {
		config.ForecastDays = 3
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:     logger,
	}, nil
}

// Forecast fetches current conditions plus the configured forecast window
func (c *Client) Forecast(ctx context.Context, city string) (*Report, error) {
	query := url.Values{}
	query.Set("key", c.config.APIKey)
	query.Set("q", city)
	query.Set("days", strconv.Itoa(c.config.ForecastDays))
	query.Set("aqi", "yes")

	data, err := c.get(ctx, "/forecast.json", query, city)
	if err != nil {
		return nil, err
	}

	var parsed apiForecastResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}

	report := &Report{
		Location: Location(parsed.Location),
		Current: Current{
			Temperature: parsed.Current.TempC,
			Condition:   parsed.Current.Condition.Text,
			FeelsLike:   parsed.Current.FeelsLikeC,
			Humidity:    parsed.Current.Humidity,
			WindKPH:     parsed.Current.WindKPH,
			WindDir:     parsed.Current.WindDir,
			PressureMB:  parsed.Current.PressureMB,
			PrecipMM:    parsed.Current.PrecipMM,
			UV:          parsed.Current.UV,
			AirQuality:  parsed.Current.AirQuality,
		},
	}
	for _, day := range parsed.Forecast.ForecastDay {
		report.Forecast = append(report.Forecast, ForecastDay{
			Date:         day.Date,
			MaxTemp:      day.Day.MaxTempC,
			MinTemp:      day.Day.MinTempC,
			Condition:    day.Day.Condition.Text,
			ChanceOfRain: day.Day.DailyChanceOfRain,
			Sunrise:      day.Astro.Sunrise,
			Sunset:       day.Astro.Sunset,
		})
	}

	return report, nil
}

// AirQuality fetches pollutant measurements for a city
func (c *Client) AirQuality(ctx context.Context, city string) (*AirQuality, error) {
	query := url.Values{}
	query.Set("key", c.config.APIKey)
	query.Set("q", city)
	query.Set("aqi", "yes")

	data, err := c.get(ctx, "/current.json", query, city)
	if err != nil {
		return nil, err
	}

	var parsed apiCurrentResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode air quality response: %w", err)
	}

	aqi := parsed.Current.AirQuality
	return &AirQuality{
		City:    parsed.Location.Name,
		Country: parsed.Location.Country,
		AQI:     int(aqi["us-epa-index"]),
		PM25:    aqi["pm2_5"],
		PM10:    aqi["pm10"],
		NO2:     aqi["no2"],
		O3:      aqi["o3"],
		CO:      aqi["co"],
	}, nil
}

// get performs a rate-limited, retried GET against the WeatherAPI host
func (c *Client) get(ctx context.Context, path string, query url.Values, city string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.config.BaseURL + path + "?" + query.Encode()
	start := time.Now()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Weather API request failed, retrying",
				zap.String("path", path), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode == http.StatusNotFound ||
			resp.StatusCode == http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrCityNotFound, city))
		case resp.StatusCode >= 500:
			c.logger.Warn("Weather API server error, retrying",
				zap.Int("status_code", resp.StatusCode))
			return fmt.Errorf("weather API returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("weather API returned %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	c.logger.Debug("Weather API request completed",
		zap.String("path", path),
		zap.String("city", city),
		zap.Duration("duration", time.Since(start)))

	return body, nil
}
