package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/embeddings"
	"github.com/skycast-ai/skycast/internal/llm"
	"github.com/skycast-ai/skycast/internal/semcache"
	"github.com/skycast-ai/skycast/internal/weather"
)

// scriptedLLM answers by matching a substring of the system prompt, counting
// calls so tests can assert which stages were served from cache.
type scriptedLLM struct {
	answers map[string]string
	calls   int
	err     error
}

func (s *scriptedLLM) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	for marker, answer := range s.answers {
		if len(messages) > 0 && strings.Contains(messages[0].Content, marker) {
			return answer, nil
		}
	}
	return "GENERAL_CHAT", nil
}

type stubWeather struct {
	forecastErr error
}

func (s *stubWeather) Forecast(_ context.Context, city string) (*weather.Report, error) {
	if s.forecastErr != nil {
		return nil, s.forecastErr
	}
	return &weather.Report{
		Location: weather.Location{Name: "Vancouver", Country: "Canada"},
		Current:  weather.Current{Temperature: 18, Condition: "Partly cloudy"},
	}, nil
}

func (s *stubWeather) AirQuality(_ context.Context, city string) (*weather.AirQuality, error) {
	return &weather.AirQuality{City: "Vancouver", Country: "Canada", AQI: 1}, nil
}

type stubSpace struct{}

func (stubSpace) Current(context.Context) weather.SpaceWeather {
	return weather.SpaceWeather{KPIndex: 2, SolarRadiation: "normal", Forecast: "Aurora not likely visible"}
}

func newTestAgent(t *testing.T, completer Completer, wp WeatherProvider) *Agent {
	t.Helper()

	logger := zap.NewNop()
	embedder := embeddings.NewHashEmbedder(64, logger)
	analysisCache := semcache.New(semcache.Config{
		SimilarityThreshold: 0.75, TTL: time.Hour, MaxEntries: 128,
	}, embedder, logger)
	chatCache := semcache.New(semcache.Config{
		SimilarityThreshold: 0.90, TTL: time.Hour, MaxEntries: 128,
	}, embedder, logger)

	if wp == nil {
		wp = &stubWeather{}
	}
	return New(completer, wp, stubSpace{}, analysisCache, chatCache, nil, logger)
}

func TestHandleMessageWeatherPath(t *testing.T) {
	mock := &scriptedLLM{answers: map[string]string{
		"WEATHER_QUERY":  "WEATHER_QUERY",
		"normalizes":     "Vancouver, Canada",
		"analyzing":      "Mild and partly cloudy, light rain later this week.",
	}}
	a := newTestAgent(t, mock, nil)

	resp, err := a.HandleMessage(context.Background(), "what's the weather in yvr?")
	require.NoError(t, err)

	assert.Equal(t, "weather", resp.Type)
	assert.Equal(t, "Mild and partly cloudy, light rain later this week.", resp.Message)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "Vancouver, Canada", resp.Data.NormalizedCity)
	assert.Equal(t, "Vancouver", resp.Data.Weather.Location.Name)
	assert.Equal(t, 1, resp.Data.AirQuality.AQI)
	assert.Equal(t, "normal", resp.Data.SpaceWeather.SolarRadiation)

	operations := make([]string, 0, len(resp.Timings))
	for _, timing := range resp.Timings {
		operations = append(operations, timing.Operation)
	}
	assert.Equal(t, []string{
		"intent_detection", "city_normalization", "weather_data_fetch", "weather_analysis",
	}, operations)
}

func TestHandleMessageChatPath(t *testing.T) {
	mock := &scriptedLLM{answers: map[string]string{
		"WEATHER_QUERY": "GENERAL_CHAT",
		"friendly":      "Hello! How can I help with the weather today?",
	}}
	a := newTestAgent(t, mock, nil)

	resp, err := a.HandleMessage(context.Background(), "hi there")
	require.NoError(t, err)

	assert.Equal(t, "chat", resp.Type)
	assert.Equal(t, "Hello! How can I help with the weather today?", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestAnalysisServedFromCacheOnRepeat(t *testing.T) {
	mock := &scriptedLLM{answers: map[string]string{
		"WEATHER_QUERY": "WEATHER_QUERY",
		"normalizes":    "Vancouver, Canada",
		"analyzing":     "Mild and cloudy.",
	}}
	a := newTestAgent(t, mock, nil)
	ctx := context.Background()

	_, err := a.HandleMessage(ctx, "weather in vancouver?")
	require.NoError(t, err)
	callsAfterFirst := mock.calls

	resp, err := a.HandleMessage(ctx, "weather in vancouver?")
	require.NoError(t, err)
	assert.Equal(t, "Mild and cloudy.", resp.Message)

	// Second pass still needs intent + normalization calls but the
	// analysis itself comes from the semantic cache.
	assert.Equal(t, callsAfterFirst+2, mock.calls)
}

func TestChatServedFromCacheOnRepeat(t *testing.T) {
	mock := &scriptedLLM{answers: map[string]string{
		"WEATHER_QUERY": "GENERAL_CHAT",
		"friendly":      "Hi!",
	}}
	a := newTestAgent(t, mock, nil)
	ctx := context.Background()

	_, err := a.HandleMessage(ctx, "hello")
	require.NoError(t, err)
	callsAfterFirst := mock.calls

	resp, err := a.HandleMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi!", resp.Message)
	assert.Equal(t, callsAfterFirst+1, mock.calls)
}

func TestScrubCityAnswer(t *testing.T) {
	cases := map[string]string{
		"Vancouver, Canada":                          "Vancouver, Canada",
		"'Vancouver, Canada'":                        "Vancouver, Canada",
		"The normalized city is Vancouver, Canada.":  "Vancouver, Canada",
		"  Paris, France  ":                          "Paris, France",
		"":                                           "",
	}
	for input, want := range cases {
		assert.Equal(t, want, scrubCityAnswer(input), "input %q", input)
	}
}

func TestNormalizeCityEmptyAnswer(t *testing.T) {
	mock := &scriptedLLM{answers: map[string]string{
		"normalizes": "   ",
	}}
	a := newTestAgent(t, mock, nil)

	_, err := a.NormalizeCity(context.Background(), "weather in ???", NewTimingCollector())
	assert.ErrorIs(t, err, ErrCityUndetermined)
}

func TestFetchAllPropagatesWeatherError(t *testing.T) {
	mock := &scriptedLLM{answers: map[string]string{
		"normalizes": "Atlantis",
	}}
	a := newTestAgent(t, mock, &stubWeather{forecastErr: weather.ErrCityNotFound})

	_, err := a.FetchAll(context.Background(), "weather in atlantis", NewTimingCollector())
	assert.ErrorIs(t, err, weather.ErrCityNotFound)
}

func TestHandleMessageLLMFailure(t *testing.T) {
	mock := &scriptedLLM{err: errors.New("upstream down")}
	a := newTestAgent(t, mock, nil)

	_, err := a.HandleMessage(context.Background(), "hello")
	assert.Error(t, err)
}

func TestTimingCollectorConcurrentAdd(t *testing.T) {
	tc := NewTimingCollector()
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 25; j++ {
				tc.Add("op", time.Millisecond)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Len(t, tc.Timings(), 100)
}
