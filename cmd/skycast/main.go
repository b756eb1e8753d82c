package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	"github.com/skycast-ai/skycast/internal/server"
	"github.com/skycast-ai/skycast/internal/vector"
	"github.com/skycast-ai/skycast/internal/weather"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Skycast %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Skycast",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port))

	// Wait for the serving endpoints before accepting traffic, like the
	// upstreams may still be loading model weights.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancelStartup()

	llmClient := llm.NewClient(llm.Config{
		BaseURL:    cfg.Upstream.LLM.BaseURL,
		HealthURL:  cfg.Upstream.LLM.HealthURL,
		APIKey:     cfg.Upstream.LLM.APIKey,
		Model:      cfg.Upstream.LLM.Model,
		Timeout:    cfg.Upstream.LLM.Timeout,
		MaxRetries: cfg.Upstream.LLM.MaxRetries,
	}, log.WithComponent("llm").Logger)

	if err := llmClient.WaitHealthy(startupCtx, 20*time.Second); err != nil {
		log.Fatal("LLM server never became healthy", zap.Error(err))
	}

	embedder, err := embeddings.New(
		embeddings.Provider(cfg.Upstream.Embedding.Provider),
		embeddings.ClientConfig{
			BaseURL:    cfg.Upstream.Embedding.BaseURL,
			APIKey:     cfg.Upstream.Embedding.APIKey,
			Model:      cfg.Upstream.Embedding.Model,
			Timeout:    cfg.Upstream.Embedding.Timeout,
			MaxRetries: cfg.Upstream.Embedding.MaxRetries,
		},
		cfg.Upstream.Embedding.Dimensions,
		log.WithComponent("embeddings").Logger,
	)
	if err != nil {
		log.Fatal("Failed to create embedder", zap.Error(err))
	}
	defer embedder.Close()

	if cfg.Upstream.Embedding.Provider == string(embeddings.OpenAIProvider) {
		healthClient := &http.Client{Timeout: 5 * time.Second}
		if err := llm.WaitHealthy(startupCtx, healthClient,
			cfg.Upstream.Embedding.HealthURL, 20*time.Second, log.Logger); err != nil {
			log.Fatal("Embedding server never became healthy", zap.Error(err))
		}
	}

	weatherClient, err := weather.NewClient(weather.Config{
		APIKey:            cfg.Weather.APIKey,
		BaseURL:           cfg.Weather.BaseURL,
		ForecastDays:      cfg.Weather.ForecastDays,
		Timeout:           cfg.Weather.Timeout,
		RequestsPerSecond: cfg.Weather.RequestsPerSecond,
		Burst:             cfg.Weather.Burst,
	}, log.WithComponent("weather").Logger)
	if err != nil {
		log.Fatal("Failed to create weather client", zap.Error(err))
	}

	spaceClient := weather.NewSpaceClient(weather.SpaceConfig{
		KPIndexURL: cfg.Weather.Space.KPIndexURL,
		Timeout:    cfg.Weather.Timeout,
		CacheTTL:   cfg.Weather.Space.CacheTTL,
		CacheSize:  cfg.Weather.Space.CacheSize,
	}, log.WithComponent("weather").Logger)

	analysisCache := semcache.New(semcache.Config{
		SimilarityThreshold: cfg.Cache.Semantic.AnalysisThreshold,
		TTL:                 cfg.Cache.Semantic.TTL,
		MaxEntries:          cfg.Cache.Semantic.MaxEntries,
	}, embedder, log.WithComponent("semcache").Logger)
	chatCache := semcache.New(semcache.Config{
		SimilarityThreshold: cfg.Cache.Semantic.ChatThreshold,
		TTL:                 cfg.Cache.Semantic.TTL,
		MaxEntries:          cfg.Cache.Semantic.MaxEntries,
	}, embedder, log.WithComponent("semcache").Logger)

	var responseCache *cache.ResponseCache
	if cfg.Cache.Redis.URL != "" {
		responseCache, err = cache.NewResponseCache(&cache.Config{
			URL:            cfg.Cache.Redis.URL,
			MaxConnections: cfg.Cache.Redis.MaxConnections,
			MinIdleConns:   cfg.Cache.Redis.MinIdleConns,
			DefaultTTL:     cfg.Cache.Redis.DefaultTTL,
			KeyPrefix:      cfg.Cache.Redis.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer responseCache.Close()
	}

	var warmStore *vector.Store
	if cfg.Cache.WarmDB.DatabaseURL != "" {
		warmStore, err = vector.NewStore(&vector.Config{
			DatabaseURL:     cfg.Cache.WarmDB.DatabaseURL,
			MaxOpenConns:    cfg.Cache.WarmDB.MaxOpenConns,
			MaxIdleConns:    cfg.Cache.WarmDB.MaxIdleConns,
			ConnMaxLifetime: cfg.Cache.WarmDB.ConnMaxLifetime,
		}, log.WithComponent("vector").Logger)
		if err != nil {
			log.Fatal("Failed to connect to warm store", zap.Error(err))
		}
		defer warmStore.Close()

		warmCaches(startupCtx, warmStore, analysisCache, chatCache, log)
	}

	hub := events.NewHub(&events.Config{
		Enabled:              cfg.Events.Enabled,
		BroadcastCacheEvents: cfg.Events.BroadcastCache,
		BroadcastRequests:    cfg.Events.BroadcastRequests,
		BroadcastConnections: true,
	}, log.WithComponent("events").Logger)

	assistant := agent.New(llmClient, weatherClient, spaceClient,
		analysisCache, chatCache, hub, log.WithComponent("agent").Logger)

	exporter := export.NewExporter(export.Config{
		Directory: cfg.Export.Directory,
	}, log.WithComponent("export").Logger)

	srv, err := server.New(cfg, server.Deps{
		Agent:         assistant,
		AnalysisCache: analysisCache,
		ChatCache:     chatCache,
		ResponseCache: responseCache,
		Hub:           hub,
		Exporter:      exporter,
	}, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		if warmStore != nil {
			saveCaches(ctx, warmStore, analysisCache, chatCache, log)
		}

		log.Info("Server shutdown complete")
	}
}

// warmCaches seeds both semantic caches from the persisted snapshots
func warmCaches(ctx context.Context, store *vector.Store, analysisCache, chatCache *semcache.Cache, log *logger.Logger) {
	for name, c := range map[string]*semcache.Cache{
		"analysis": analysisCache,
		"chat":     chatCache,
	} {
		entries, err := store.LoadEntries(ctx, name)
		if err != nil {
			log.Warn("Failed to load cache snapshot",
				zap.String("cache_name", name), zap.Error(err))
			continue
		}
		c.Load(entries)
	}
}

// saveCaches persists both semantic caches for the next start
func saveCaches(ctx context.Context, store *vector.Store, analysisCache, chatCache *semcache.Cache, log *logger.Logger) {
	for name, c := range map[string]*semcache.Cache{
		"analysis": analysisCache,
		"chat":     chatCache,
	} {
		if err := store.SaveEntries(ctx, name, c.Snapshot()); err != nil {
			log.Warn("Failed to save cache snapshot",
				zap.String("cache_name", name), zap.Error(err))
		}
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:8001/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
