package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"go.uber.org/zap"
)

// HashEmbedder produces deterministic pseudo-embeddings from a text hash.
// Identical texts always map to identical vectors, which is enough to
// exercise the semantic cache offline and in tests without an embedding
// server. It has no semantic signal between different texts.
type HashEmbedder struct {
	dims   int
	logger *zap.Logger
}

// NewHashEmbedder creates a deterministic hash embedder
func NewHashEmbedder(dims int, logger *zap.Logger) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	logger.Info("Hash embedder initialized", zap.Int("dimensions", dims))
	return &HashEmbedder{dims: dims, logger: logger}
}

// Embed generates an L2-normalized vector seeded by the sha256 of the
// normalized text.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := strings.ToLower(strings.TrimSpace(text))

	hash := sha256.Sum256([]byte(normalized))
	seed := int64(binary.BigEndian.Uint64(hash[:8]))
	rng := rand.New(rand.NewSource(seed))

	embedding := make([]float64, h.dims)
	var norm float64
	for i := range embedding {
		v := rng.NormFloat64()
		embedding[i] = v
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding, nil
}

// Dimensions returns the configured vector length
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// Close is a no-op for the hash embedder
func (h *HashEmbedder) Close() error {
	return nil
}

var _ Embedder = (*HashEmbedder)(nil)
