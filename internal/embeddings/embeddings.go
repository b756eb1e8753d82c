package embeddings

import (
	"context"
	"math"
)

// Embedder produces fixed-dimension vector embeddings for text. The semantic
// cache depends only on this interface; the concrete provider is either the
// remote OpenAI-compatible endpoint or the deterministic hash embedder.
type Embedder interface {
	// Embed returns the embedding of text. Transient provider failures are
	// returned as-is; callers decide whether to retry or treat as a miss.
	Embed(ctx context.Context, text string) ([]float64, error)
	// Dimensions returns the embedding vector length.
	Dimensions() int
	Close() error
}

// Cosine computes the cosine similarity of two vectors using double-precision
// arithmetic. Mismatched lengths or a zero-norm vector yield 0 rather than a
// division by zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
