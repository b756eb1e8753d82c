package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/agent"
	"github.com/skycast-ai/skycast/internal/cache"
	"github.com/skycast-ai/skycast/internal/config"
	"github.com/skycast-ai/skycast/internal/embeddings"
	"github.com/skycast-ai/skycast/internal/events"
	"github.com/skycast-ai/skycast/internal/export"
	"github.com/skycast-ai/skycast/internal/llm"
	"github.com/skycast-ai/skycast/internal/logger"
	"github.com/skycast-ai/skycast/internal/semcache"
	"github.com/skycast-ai/skycast/internal/weather"
)

type scriptedLLM struct {
	answers map[string]string
	calls   int
}

func (s *scriptedLLM) Complete(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	s.calls++
	for marker, answer := range s.answers {
		if len(messages) > 0 && strings.Contains(messages[0].Content, marker) {
			return answer, nil
		}
	}
	return "GENERAL_CHAT", nil
}

type stubWeather struct {
	notFound bool
}

func (s *stubWeather) Forecast(_ context.Context, city string) (*weather.Report, error) {
	if s.notFound {
		return nil, weather.ErrCityNotFound
	}
	return &weather.Report{
		Location: weather.Location{Name: "Vancouver", Country: "Canada"},
	}, nil
}

func (s *stubWeather) AirQuality(_ context.Context, city string) (*weather.AirQuality, error) {
	if s.notFound {
		return nil, weather.ErrCityNotFound
	}
	return &weather.AirQuality{City: "Vancouver", AQI: 1}, nil
}

type stubSpace struct{}

func (stubSpace) Current(context.Context) weather.SpaceWeather {
	return weather.SpaceWeather{SolarRadiation: "normal"}
}

type testEnv struct {
	server *Server
	llm    *scriptedLLM
	cfg    *config.Config
}

func newTestServer(t *testing.T, mutate func(*testEnv)) *testEnv {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)

	zlog := zap.NewNop()
	embedder := embeddings.NewHashEmbedder(64, zlog)
	analysisCache := semcache.New(semcache.Config{
		SimilarityThreshold: 0.75, TTL: time.Hour, MaxEntries: 128,
	}, embedder, zlog)
	chatCache := semcache.New(semcache.Config{
		SimilarityThreshold: 0.90, TTL: time.Hour, MaxEntries: 128,
	}, embedder, zlog)

	mock := &scriptedLLM{answers: map[string]string{
		"WEATHER_QUERY": "WEATHER_QUERY",
		"normalizes":    "Vancouver, Canada",
		"analyzing":     "Mild with clouds.",
		"friendly":      "Hello!",
	}}

	hub := events.NewHub(&events.Config{}, zlog)
	a := agent.New(mock, &stubWeather{}, stubSpace{}, analysisCache, chatCache, hub, zlog)

	cfg := config.GetDefaults()
	cfg.Limits.Enabled = false

	env := &testEnv{llm: mock, cfg: cfg}

	deps := Deps{
		Agent:         a,
		AnalysisCache: analysisCache,
		ChatCache:     chatCache,
		Hub:           hub,
		Exporter:      export.NewExporter(export.Config{Directory: t.TempDir()}, zlog),
	}

	srv, err := New(cfg, deps, log)
	require.NoError(t, err)
	env.server = srv

	if mutate != nil {
		mutate(env)
	}
	return env
}

func postChat(t *testing.T, handler http.Handler, message string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(ChatRequest{Message: message})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestChatWeatherQuery(t *testing.T) {
	env := newTestServer(t, nil)

	rec := postChat(t, env.server.Handler(), "what's the weather in vancouver?")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "weather", resp.Type)
	assert.Equal(t, "Mild with clouds.", resp.Message)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "Vancouver, Canada", resp.Data.NormalizedCity)
	assert.NotEmpty(t, resp.Timings)
}

func TestChatMissingMessage(t *testing.T) {
	env := newTestServer(t, nil)

	rec := postChat(t, env.server.Handler(), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "message is required", body.Detail)
}

func TestChatCityNotFound(t *testing.T) {
	env := newTestServer(t, nil)
	env.server.deps.Agent = agent.New(env.llm, &stubWeather{notFound: true}, stubSpace{},
		env.server.deps.AnalysisCache, env.server.deps.ChatCache, env.server.deps.Hub, zap.NewNop())

	rec := postChat(t, env.server.Handler(), "weather in atlantis?")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatServedFromSharedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	env := newTestServer(t, func(env *testEnv) {
		rc, err := cache.NewResponseCache(&cache.Config{
			URL:            "redis://" + mr.Addr(),
			MaxConnections: 2,
			MinIdleConns:   1,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "skycast-test",
		}, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { rc.Close() })
		env.server.deps.ResponseCache = rc
	})

	rec := postChat(t, env.server.Handler(), "hello")
	require.Equal(t, http.StatusOK, rec.Code)
	callsAfterFirst := env.llm.calls

	rec = postChat(t, env.server.Handler(), "hello")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello!", resp.Message)
	// Exact repeat never reaches the model.
	assert.Equal(t, callsAfterFirst, env.llm.calls)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	postChat(t, env.server.Handler(), "hello")
	postChat(t, env.server.Handler(), "hello")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.ChatCache.Hits)
	assert.Equal(t, int64(1), stats.ChatCache.Misses)
}

func TestExportEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	postChat(t, env.server.Handler(), "hello")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/export", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["rows"])
	assert.FileExists(t, body["path"].(string))
}

func TestCacheClearEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	postChat(t, env.server.Handler(), "hello")
	require.Equal(t, 1, env.server.deps.ChatCache.Len())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Zero(t, env.server.deps.ChatCache.Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestServer(t, func(env *testEnv) {
		env.cfg.Limits.Enabled = true
		env.cfg.Limits.RequestsPerMin = 60
		env.cfg.Limits.Burst = 1
		env.server.limiters = newClientLimiters(env.cfg.Limits)
	})

	first := postChat(t, env.server.Handler(), "hello")
	require.Equal(t, http.StatusOK, first.Code)

	second := postChat(t, env.server.Handler(), "hello")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
