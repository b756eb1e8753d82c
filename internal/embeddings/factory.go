package embeddings

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider identifies an embedding provider implementation
type Provider string

const (
	// OpenAIProvider uses a remote OpenAI-compatible embeddings endpoint
	OpenAIProvider Provider = "openai"
	// HashProvider uses the deterministic local hash embedder
	HashProvider Provider = "hash"
)

// New creates an Embedder for the given provider. dims is only used by the
// hash provider; the remote provider reports whatever the endpoint returns.
func New(provider Provider, cfg ClientConfig, dims int, logger *zap.Logger) (Embedder, error) {
	switch provider {
	case OpenAIProvider:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedding base URL is required for the openai provider")
		}
		return NewClient(cfg, logger), nil
	case HashProvider:
		return NewHashEmbedder(dims, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}
