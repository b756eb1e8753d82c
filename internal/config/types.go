package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
	Weather  WeatherConfig  `yaml:"weather" mapstructure:"weather"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Limits   LimitsConfig   `yaml:"limits" mapstructure:"limits"`
	Events   EventsConfig   `yaml:"events" mapstructure:"events"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
}

// ExportConfig contains cache snapshot export configuration
type ExportConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// UpstreamConfig contains the OpenAI-compatible serving endpoints
type UpstreamConfig struct {
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
}

// LLMConfig contains the chat completion endpoint configuration
type LLMConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	HealthURL  string        `yaml:"health_url" mapstructure:"health_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// EmbeddingConfig contains the embedding endpoint configuration
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider"` // openai or hash
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	HealthURL  string        `yaml:"health_url" mapstructure:"health_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Dimensions int           `yaml:"dimensions" mapstructure:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// WeatherConfig contains external weather data source configuration
type WeatherConfig struct {
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	ForecastDays      int           `yaml:"forecast_days" mapstructure:"forecast_days"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	Space             struct {
		KPIndexURL string        `yaml:"kp_index_url" mapstructure:"kp_index_url"`
		CacheTTL   time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
		CacheSize  int           `yaml:"cache_size" mapstructure:"cache_size"`
	} `yaml:"space" mapstructure:"space"`
}

// CacheConfig contains semantic cache, Redis, and warm store configuration
type CacheConfig struct {
	Semantic SemanticConfig  `yaml:"semantic" mapstructure:"semantic"`
	Redis    RedisConfig     `yaml:"redis" mapstructure:"redis"`
	WarmDB   WarmStoreConfig `yaml:"warm_db" mapstructure:"warm_db"`
}

// SemanticConfig contains the in-memory semantic cache parameters
type SemanticConfig struct {
	AnalysisThreshold float64       `yaml:"analysis_threshold" mapstructure:"analysis_threshold"`
	ChatThreshold     float64       `yaml:"chat_threshold" mapstructure:"chat_threshold"`
	TTL               time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxEntries        int           `yaml:"max_entries" mapstructure:"max_entries"`
}

// RedisConfig contains the optional shared response cache configuration.
// An empty URL disables the Redis layer.
type RedisConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// WarmStoreConfig contains the optional Postgres warm store configuration.
// An empty database URL disables persistence.
type WarmStoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// LimitsConfig contains per-client rate limiting configuration
type LimitsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// EventsConfig contains WebSocket event feed configuration
type EventsConfig struct {
	Enabled           bool     `yaml:"enabled" mapstructure:"enabled"`
	Path              string   `yaml:"path" mapstructure:"path"`
	ReadBufferSize    int      `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize   int      `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	BroadcastRequests bool     `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastCache    bool     `yaml:"broadcast_cache" mapstructure:"broadcast_cache"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			LLM: LLMConfig{
				BaseURL:    "http://0.0.0.0:8010/v1",
				HealthURL:  "http://0.0.0.0:8010/v1/health",
				APIKey:     "local",
				Model:      "modularai/Llama-3.1-8B-Instruct-GGUF",
				Timeout:    30 * time.Second,
				MaxRetries: 3,
			},
			Embedding: EmbeddingConfig{
				Provider:   "openai",
				BaseURL:    "http://0.0.0.0:7999/v1",
				HealthURL:  "http://0.0.0.0:7999/v1/health",
				APIKey:     "local",
				Model:      "sentence-transformers/all-mpnet-base-v2",
				Dimensions: 768,
				Timeout:    30 * time.Second,
				MaxRetries: 3,
			},
		},
		Weather: WeatherConfig{
			BaseURL:           "http://api.weatherapi.com/v1",
			ForecastDays:      3,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Cache: CacheConfig{
			Semantic: SemanticConfig{
				AnalysisThreshold: 0.75,
				ChatThreshold:     0.90,
				TTL:               time.Hour,
				MaxEntries:        1024,
			},
			Redis: RedisConfig{
				MaxConnections: 10,
				MinIdleConns:   2,
				DefaultTTL:     time.Hour,
				KeyPrefix:      "skycast",
			},
			WarmDB: WarmStoreConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Limits: LimitsConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			Burst:          20,
		},
		Export: ExportConfig{
			Directory: "exports",
		},
		Events: EventsConfig{
			Enabled:           true,
			Path:              "/ws",
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			AllowedOrigins:    []string{"*"},
			BroadcastRequests: true,
			BroadcastCache:    true,
		},
	}

	cfg.Weather.Space.KPIndexURL = "https://services.swpc.noaa.gov/json/planetary_k_index_1m.json"
	cfg.Weather.Space.CacheTTL = time.Hour
	cfg.Weather.Space.CacheSize = 16

	return cfg
}
