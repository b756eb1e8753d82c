package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ClientConfig contains the remote embedding endpoint configuration
type ClientConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// Client generates embeddings via an OpenAI-compatible /embeddings endpoint.
// It is safe for concurrent use; the cache embeds queries outside its own
// lock, so overlapping requests share one client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
	dims       atomic.Int32
}

// NewClient creates a remote embedding client
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed requests the embedding of text from the upstream endpoint. Transient
// failures (network errors, 5xx) are retried with exponential backoff up to
// MaxRetries; the final error propagates to the caller.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	body, err := json.Marshal(embeddingRequest{Model: c.config.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	start := time.Now()
	var embedding []float64

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.config.BaseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Embedding request failed, retrying", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			c.logger.Warn("Embedding server error, retrying",
				zap.Int("status_code", resp.StatusCode))
			return fmt.Errorf("embedding server returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("embedding request rejected: %d: %s",
				resp.StatusCode, string(data)))
		}

		var parsed embeddingResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode embedding response: %w", err))
		}
		if len(parsed.Data) == 0 {
			return backoff.Permanent(fmt.Errorf("embedding response contains no data"))
		}

		embedding = parsed.Data[0].Embedding
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	c.dims.CompareAndSwap(0, int32(len(embedding)))

	c.logger.Debug("Embedding generated",
		zap.String("model", c.config.Model),
		zap.Int("dimensions", len(embedding)),
		zap.Duration("duration", time.Since(start)))

	return embedding, nil
}

// Dimensions returns the embedding length observed from the endpoint, or 0
// before the first successful call.
func (c *Client) Dimensions() int {
	return int(c.dims.Load())
}

// Close releases client resources
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ Embedder = (*Client)(nil)
