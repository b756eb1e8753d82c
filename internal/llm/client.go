package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Config contains the OpenAI-compatible chat completion endpoint configuration
type Config struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	HealthURL  string        `yaml:"health_url" mapstructure:"health_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// Client talks to an OpenAI-compatible chat completions endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Message is a single chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion call
type Options struct {
	MaxTokens   int
	Temperature float64
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
}

// NewClient creates a chat completion client
func NewClient(config Config, logger *zap.Logger) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Complete sends the messages to the chat completions endpoint and returns
// the first choice's content. Transient failures are retried with
// exponential backoff up to MaxRetries.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	payload := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: &opts.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	start := time.Now()
	var content string

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("Chat completion request failed, retrying", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			c.logger.Warn("LLM server error, retrying",
				zap.Int("status_code", resp.StatusCode))
			return fmt.Errorf("llm server returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("chat request rejected: %d: %s",
				resp.StatusCode, string(data)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat response contains no choices"))
		}

		content = parsed.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}

	c.logger.Debug("Chat completion finished",
		zap.String("model", c.config.Model),
		zap.Duration("duration", time.Since(start)))

	return content, nil
}

// WaitHealthy polls the upstream health endpoint until it answers 200 or the
// context expires. Used at startup before accepting traffic.
func (c *Client) WaitHealthy(ctx context.Context, interval time.Duration) error {
	return WaitHealthy(ctx, c.httpClient, c.config.HealthURL, interval, c.logger)
}

// WaitHealthy polls healthURL until it returns 200 or ctx is done.
func WaitHealthy(ctx context.Context, client *http.Client, healthURL string, interval time.Duration, logger *zap.Logger) error {
	if healthURL == "" {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempt := 0
	for {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				logger.Info("Upstream healthy", zap.String("health_url", healthURL))
				return nil
			}
		}

		logger.Info("Waiting for upstream",
			zap.String("health_url", healthURL),
			zap.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return fmt.Errorf("upstream %s never became healthy: %w", healthURL, ctx.Err())
		case <-ticker.C:
		}
	}
}
