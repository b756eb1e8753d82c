package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// spaceKeyVersion versions the cache key construction; bump when the key
// derivation or the cached payload shape changes.
const spaceKeyVersion = "v1"

// spaceKey builds the exact-match cache key for the space weather payload.
// Field order is fixed: prefix, version, source.
func spaceKey() string {
	return "space_weather:" + spaceKeyVersion + ":kp_index"
}

// SpaceConfig contains the NOAA space weather client configuration
type SpaceConfig struct {
	KPIndexURL string        `yaml:"kp_index_url" mapstructure:"kp_index_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheSize  int           `yaml:"cache_size" mapstructure:"cache_size"`
}

// SpaceClient fetches solar activity from NOAA. Responses are cached in a
// size-bounded TTL cache since the feed changes on the order of minutes and
// is identical for every user.
type SpaceClient struct {
	config     SpaceConfig
	httpClient *http.Client
	cache      *expirable.LRU[string, SpaceWeather]
	logger     *zap.Logger
}

// NewSpaceClient creates a NOAA space weather client
func NewSpaceClient(config SpaceConfig, logger *zap.Logger) *SpaceClient {
	if config.CacheSize <= 0 {
		config.CacheSize = 16
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}

	return &SpaceClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      expirable.NewLRU[string, SpaceWeather](config.CacheSize, nil, config.CacheTTL),
		logger:     logger,
	}
}

type kpIndexRow struct {
	TimeTag string   `json:"time_tag"`
	Kp      kpScalar `json:"kp"`
}

// kpScalar tolerates the feed reporting kp as either a bare number or a
// quoted string.
type kpScalar string

func (k *kpScalar) UnmarshalJSON(data []byte) error {
	*k = kpScalar(strings.Trim(string(data), `"`))
	return nil
}

// Current returns space weather conditions, serving from cache within the
// TTL. A fetch failure degrades to a valid quiet-conditions payload rather
// than an error, matching how the assistant treats this feed as best-effort.
func (s *SpaceClient) Current(ctx context.Context) SpaceWeather {
	if cached, ok := s.cache.Get(spaceKey()); ok {
		s.logger.Debug("Space weather cache hit")
		return cached
	}

	result, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error("Error fetching space weather", zap.Error(err))
		return SpaceWeather{
			KPIndex:        0.0,
			AuroraVisible:  false,
			SolarRadiation: "normal",
			Forecast:       "Space weather data temporarily unavailable",
		}
	}

	s.cache.Add(spaceKey(), result)
	return result
}

func (s *SpaceClient) fetch(ctx context.Context) (SpaceWeather, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.KPIndexURL, nil)
	if err != nil {
		return SpaceWeather{}, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SpaceWeather{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SpaceWeather{}, fmt.Errorf("kp index feed returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return SpaceWeather{}, err
	}

	var rows []kpIndexRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return SpaceWeather{}, fmt.Errorf("failed to decode kp index feed: %w", err)
	}
	if len(rows) == 0 {
		return SpaceWeather{}, fmt.Errorf("kp index feed is empty")
	}

	kpIndex, err := strconv.ParseFloat(string(rows[0].Kp), 64)
	if err != nil {
		s.logger.Warn("Invalid Kp index value, using default", zap.String("kp", string(rows[0].Kp)))
		kpIndex = 0.0
	}

	result := SpaceWeather{
		KPIndex:       kpIndex,
		AuroraVisible: kpIndex >= 5,
	}
	if kpIndex < 4 {
		result.SolarRadiation = "normal"
	} else {
		result.SolarRadiation = "elevated"
	}
	if kpIndex >= 5 {
		result.Forecast = "Aurora may be visible"
	} else {
		result.Forecast = "Aurora not likely visible"
	}

	return result, nil
}
