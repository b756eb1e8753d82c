// Package agent implements the assistant pipeline: classify the message,
// resolve the city, fetch weather data concurrently, and answer through the
// semantic caches so repeat phrasings skip the model.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skycast-ai/skycast/internal/llm"
	"github.com/skycast-ai/skycast/internal/semcache"
	"github.com/skycast-ai/skycast/internal/weather"
)

// ErrCityUndetermined is returned when the model's normalization output is
// empty after scrubbing.
var ErrCityUndetermined = errors.New("could not determine city from request")

// Completer generates chat completions
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// WeatherProvider fetches forecast and air quality data for a city
type WeatherProvider interface {
	Forecast(ctx context.Context, city string) (*weather.Report, error)
	AirQuality(ctx context.Context, city string) (*weather.AirQuality, error)
}

// SpaceProvider fetches current space weather conditions
type SpaceProvider interface {
	Current(ctx context.Context) weather.SpaceWeather
}

// Publisher receives pipeline events for live monitoring. Implementations
// must not block.
type Publisher interface {
	Publish(eventType string, data map[string]interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, map[string]interface{}) {}

// WeatherBundle aggregates everything fetched for one weather query
type WeatherBundle struct {
	Weather        *weather.Report      `json:"weather"`
	AirQuality     *weather.AirQuality  `json:"air_quality"`
	SpaceWeather   weather.SpaceWeather `json:"space_weather"`
	NormalizedCity string               `json:"normalized_city"`
}

// Response is the assistant's answer to one chat message
type Response struct {
	Type    string            `json:"type"` // weather or chat
	Message string            `json:"message"`
	Data    *WeatherBundle    `json:"data,omitempty"`
	Timings []OperationTiming `json:"timings"`
}

// Agent orchestrates the assistant pipeline
type Agent struct {
	llm           Completer
	weather       WeatherProvider
	space         SpaceProvider
	analysisCache *semcache.Cache
	chatCache     *semcache.Cache
	events        Publisher
	logger        *zap.Logger
}

// New creates an agent. The analysis cache answers repeated weather
// questions per city, the chat cache answers near-duplicate small talk.
func New(completer Completer, weatherClient WeatherProvider, spaceClient SpaceProvider,
	analysisCache, chatCache *semcache.Cache, events Publisher, logger *zap.Logger) *Agent {
	if events == nil {
		events = noopPublisher{}
	}
	return &Agent{
		llm:           completer,
		weather:       weatherClient,
		space:         spaceClient,
		analysisCache: analysisCache,
		chatCache:     chatCache,
		events:        events,
		logger:        logger,
	}
}

// HandleMessage runs the full pipeline for one chat message
func (a *Agent) HandleMessage(ctx context.Context, message string) (*Response, error) {
	tc := NewTimingCollector()
	a.logger.Info("Received message", zap.String("message", message))

	intent, err := a.DetectIntent(ctx, message, tc)
	if err != nil {
		return nil, fmt.Errorf("intent detection failed: %w", err)
	}
	a.logger.Info("Detected intent", zap.String("intent", intent))

	if intent == intentWeather {
		bundle, err := a.FetchAll(ctx, message, tc)
		if err != nil {
			return nil, err
		}
		analysis, err := a.AnalyzeWeather(ctx, message, bundle, tc)
		if err != nil {
			return nil, err
		}
		return &Response{
			Type:    "weather",
			Message: analysis,
			Data:    bundle,
			Timings: tc.Timings(),
		}, nil
	}

	reply, err := a.ChatReply(ctx, message, tc)
	if err != nil {
		return nil, err
	}
	return &Response{
		Type:    "chat",
		Message: reply,
		Timings: tc.Timings(),
	}, nil
}

// DetectIntent classifies the message as a weather question or general chat
func (a *Agent) DetectIntent(ctx context.Context, message string, tc *TimingCollector) (string, error) {
	var intent string
	err := track(tc, "intent_detection", func() error {
		content, err := a.llm.Complete(ctx, []llm.Message{
			{Role: "system", Content: intentPrompt},
			{Role: "user", Content: message},
		}, llm.Options{Temperature: 0})
		if err != nil {
			return err
		}
		intent = strings.TrimSpace(content)
		return nil
	})
	return intent, err
}

// NormalizeCity resolves the city mentioned in the message to a canonical
// "City, Country" form. Model output is scrubbed of wrapper text before use.
func (a *Agent) NormalizeCity(ctx context.Context, message string, tc *TimingCollector) (string, error) {
	var city string
	err := track(tc, "city_normalization", func() error {
		content, err := a.llm.Complete(ctx, []llm.Message{
			{Role: "system", Content: cityNormalizationPrompt},
			{Role: "user", Content: message},
		}, llm.Options{MaxTokens: 50, Temperature: 0})
		if err != nil {
			return err
		}
		city = scrubCityAnswer(content)
		if city == "" {
			return ErrCityUndetermined
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	a.logger.Info("Normalized city name", zap.String("city", city))
	return city, nil
}

// scrubCityAnswer strips the wrapper text chatty models wrap around the
// city name, e.g. "The normalized city is 'Vancouver, Canada'."
func scrubCityAnswer(content string) string {
	city := strings.TrimSpace(content)
	if strings.Contains(city, "'") {
		parts := strings.Split(city, "'")
		if len(parts) > 1 {
			city = parts[1]
		}
	}
	if strings.Contains(city, " is ") {
		parts := strings.Split(city, " is ")
		city = strings.TrimSpace(parts[len(parts)-1])
	}
	return strings.Trim(city, ".' ")
}

// FetchAll normalizes the city and fetches forecast, air quality, and space
// weather concurrently.
func (a *Agent) FetchAll(ctx context.Context, message string, tc *TimingCollector) (*WeatherBundle, error) {
	city, err := a.NormalizeCity(ctx, message, tc)
	if err != nil {
		return nil, err
	}

	bundle := &WeatherBundle{NormalizedCity: city}
	err = track(tc, "weather_data_fetch", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			report, err := a.weather.Forecast(gctx, city)
			if err != nil {
				return err
			}
			bundle.Weather = report
			return nil
		})
		g.Go(func() error {
			aq, err := a.weather.AirQuality(gctx, city)
			if err != nil {
				return err
			}
			bundle.AirQuality = aq
			return nil
		})
		g.Go(func() error {
			bundle.SpaceWeather = a.space.Current(gctx)
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// AnalyzeWeather produces the natural-language summary for a weather query.
// Answers are cached under "city | message" so the same question about the
// same city, however phrased, reuses the model's earlier analysis.
func (a *Agent) AnalyzeWeather(ctx context.Context, message string, bundle *WeatherBundle, tc *TimingCollector) (string, error) {
	cacheKey := bundle.NormalizedCity + " | " + message
	a.logger.Debug("Analysis cache key", zap.String("key", cacheKey))

	var analysis string
	err := track(tc, "weather_analysis", func() error {
		hit, cached, err := a.analysisCache.Get(ctx, cacheKey, "")
		if err != nil {
			return err
		}
		if hit {
			a.events.Publish("cache_hit", map[string]interface{}{
				"cache": "analysis", "city": bundle.NormalizedCity,
			})
			analysis = cached
			return nil
		}
		a.events.Publish("cache_miss", map[string]interface{}{
			"cache": "analysis", "city": bundle.NormalizedCity,
		})

		weatherJSON, err := json.Marshal(bundle)
		if err != nil {
			return fmt.Errorf("failed to serialize weather data: %w", err)
		}

		content, err := a.llm.Complete(ctx, []llm.Message{
			{Role: "system", Content: fmt.Sprintf(weatherAnalysisPrompt, message, weatherJSON)},
		}, llm.Options{MaxTokens: 512, Temperature: 0})
		if err != nil {
			return err
		}
		analysis = content

		if err := a.analysisCache.Set(ctx, cacheKey, analysis, ""); err != nil {
			a.logger.Warn("Failed to cache analysis", zap.Error(err))
		} else {
			a.events.Publish("cache_store", map[string]interface{}{
				"cache": "analysis", "city": bundle.NormalizedCity,
			})
		}
		return nil
	})
	return analysis, err
}

// ChatReply answers general chat. Near-duplicate messages are served from
// the chat cache at a tighter threshold than weather analysis since small
// talk tolerates less paraphrase slack.
func (a *Agent) ChatReply(ctx context.Context, message string, tc *TimingCollector) (string, error) {
	var reply string
	err := track(tc, "chat_response", func() error {
		hit, cached, err := a.chatCache.Get(ctx, message, "")
		if err != nil {
			return err
		}
		if hit {
			a.events.Publish("cache_hit", map[string]interface{}{"cache": "chat"})
			reply = cached
			return nil
		}
		a.events.Publish("cache_miss", map[string]interface{}{"cache": "chat"})

		content, err := a.llm.Complete(ctx, []llm.Message{
			{Role: "system", Content: chatSystemPrompt},
			{Role: "user", Content: message},
		}, llm.Options{MaxTokens: 256, Temperature: 0})
		if err != nil {
			return err
		}
		reply = content

		if err := a.chatCache.Set(ctx, message, reply, ""); err != nil {
			a.logger.Warn("Failed to cache chat reply", zap.Error(err))
		} else {
			a.events.Publish("cache_store", map[string]interface{}{"cache": "chat"})
		}
		return nil
	})
	return reply, err
}
