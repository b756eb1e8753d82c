package semcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/embeddings"
)

// Cache is an approximate-match cache for expensive LLM calls, keyed by
// embedding-vector similarity rather than exact string match, with
// time-based expiry.
//
// The embedding for a key is computed outside the mutex, so concurrent
// callers are not serialized behind the embedding endpoint; the mutex covers
// only the expiry sweep, the similarity scan, and map mutation. A Get
// therefore never observes a half-written entry, at the cost of a small
// staleness window between embedding computation and the scan.
type Cache struct {
	config   Config
	embedder embeddings.Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	nextSeq uint64

	hits    int64
	misses  int64
	expired int64
	evicted int64
	sweepAt time.Time

	// now is swappable in tests to simulate clock advance
	now func() time.Time
}

// New creates a semantic cache backed by the given embedder
func New(config Config, embedder embeddings.Embedder, logger *zap.Logger) *Cache {
	logger.Info("Semantic cache initialized",
		zap.Float64("similarity_threshold", config.SimilarityThreshold),
		zap.Duration("ttl", config.TTL),
		zap.Int("max_entries", config.MaxEntries))

	return &Cache{
		config:   config,
		embedder: embedder,
		logger:   logger,
		entries:  make(map[string]*Entry),
		now:      time.Now,
	}
}

// keyText resolves which string the embedding is derived from. The alternate
// key (a canonical entity name) wins over the raw query text when both are
// given. Get and Set must go through the same derivation or lookups will
// never line up with inserts.
func keyText(text, altKey string) string {
	if altKey != "" {
		return altKey
	}
	return text
}

// embeddingKey builds the exact-identity map key from the full-precision
// vector bytes. Distinct inputs colliding here would require bit-identical
// embeddings, which high-dimensional models make effectively impossible.
func embeddingKey(embedding []float64) string {
	hasher := sha256.New()
	buf := make([]byte, 8)
	for _, v := range embedding {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		hasher.Write(buf)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Get looks up a semantically similar cached value for the query text.
// It first sweeps every expired entry, then scans the survivors for the
// highest cosine similarity. A hit requires similarity strictly greater
// than the configured threshold; ties resolve to the most recently
// inserted entry. An empty cache always returns a clean miss.
func (c *Cache) Get(ctx context.Context, text, altKey string) (bool, string, error) {
	query := keyText(text, altKey)

	// Embedding happens before the lock is taken; a failure propagates
	// untouched and no cache state changes.
	queryEmbedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return false, "", err
	}
	if embeddings.Norm(queryEmbedding) == 0 {
		return false, "", fmt.Errorf("query embedding has zero norm")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	var (
		maxSimilarity float64
		best          *Entry
	)
	for _, entry := range c.entries {
		similarity := embeddings.Cosine(queryEmbedding, entry.Embedding)
		c.logger.Debug("Cache candidate",
			zap.String("query", query),
			zap.Float64("similarity", similarity))

		if similarity > maxSimilarity ||
			(similarity == maxSimilarity && best != nil && entry.seq > best.seq) {
			maxSimilarity = similarity
			best = entry
		}
	}

	if best != nil && maxSimilarity > c.config.SimilarityThreshold {
		c.hits++
		c.logger.Info("Semantic cache hit",
			zap.String("query", query),
			zap.Float64("similarity", maxSimilarity))
		return true, best.Value, nil
	}

	c.misses++
	c.logger.Info("Semantic cache miss",
		zap.String("query", query),
		zap.Float64("max_similarity", maxSimilarity))
	return false, "", nil
}

// Set inserts value keyed by the embedding of the query text, overwriting
// any entry stored under a bit-identical embedding. No expiry sweep runs
// here; stale entries are purged lazily by the next Get.
func (c *Cache) Set(ctx context.Context, text, value, altKey string) error {
	key := keyText(text, altKey)

	embedding, err := c.embedder.Embed(ctx, key)
	if err != nil {
		return err
	}
	if embeddings.Norm(embedding) == 0 {
		return fmt.Errorf("key embedding has zero norm")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := embeddingKey(embedding)
	_, overwrite := c.entries[id]

	c.nextSeq++
	c.entries[id] = &Entry{
		KeyText:    key,
		Embedding:  embedding,
		Value:      value,
		InsertedAt: c.now(),
		seq:        c.nextSeq,
	}

	if !overwrite && c.config.MaxEntries > 0 && len(c.entries) > c.config.MaxEntries {
		c.evictOldestLocked()
	}

	c.logger.Debug("Semantic cache store",
		zap.String("key", key),
		zap.Bool("overwrite", overwrite),
		zap.Int("entries", len(c.entries)))
	return nil
}

// sweepLocked removes every entry whose age exceeds the TTL. Callers must
// hold the mutex.
func (c *Cache) sweepLocked() {
	now := c.now()
	for id, entry := range c.entries {
		if now.Sub(entry.InsertedAt) > c.config.TTL {
			delete(c.entries, id)
			c.expired++
		}
	}
	c.sweepAt = now
}

// evictOldestLocked removes the entry with the lowest insertion sequence.
// Callers must hold the mutex.
func (c *Cache) evictOldestLocked() {
	var (
		oldestID  string
		oldestSeq uint64
	)
	for id, entry := range c.entries {
		if oldestID == "" || entry.seq < oldestSeq {
			oldestID = id
			oldestSeq = entry.seq
		}
	}
	if oldestID != "" {
		delete(c.entries, oldestID)
		c.evicted++
		c.logger.Debug("Semantic cache eviction", zap.Int("entries", len(c.entries)))
	}
}

// Len returns the number of live entries without sweeping
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Expired:   c.expired,
		Evicted:   c.evicted,
		Entries:   len(c.entries),
		LastSweep: c.sweepAt,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear drops every entry and returns how many were dropped. Counters are
// kept so hit rates survive an operator-initiated flush.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := len(c.entries)
	c.entries = make(map[string]*Entry)
	return dropped
}

// Snapshot copies the live entries, for export and for the warm store.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, *entry)
	}
	return entries
}

// Load seeds the cache with previously persisted entries. Entries with a
// zero-norm embedding or already past the TTL are skipped. Existing cache
// contents are kept; identical embedding keys are overwritten.
func (c *Cache) Load(entries []Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	loaded := 0
	for _, entry := range entries {
		if embeddings.Norm(entry.Embedding) == 0 {
			continue
		}
		if now.Sub(entry.InsertedAt) > c.config.TTL {
			continue
		}
		c.nextSeq++
		e := entry
		e.seq = c.nextSeq
		c.entries[embeddingKey(e.Embedding)] = &e
		loaded++
	}

	c.logger.Info("Semantic cache warmed", zap.Int("loaded", loaded), zap.Int("skipped", len(entries)-loaded))
	return loaded
}
