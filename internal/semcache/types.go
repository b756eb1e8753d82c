package semcache

import "time"

// Config contains semantic cache parameters
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a lookup to
	// count as a hit. A candidate must score strictly greater than this.
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	// TTL is the maximum entry age. Entries older than this are purged
	// before every lookup scan.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// MaxEntries bounds the cache size; the oldest-inserted entry is
	// evicted when a Set would exceed it. Zero or negative means unbounded.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// Entry is a cached value together with the embedding it is keyed by.
type Entry struct {
	KeyText    string    `json:"key_text"`
	Embedding  []float64 `json:"embedding"`
	Value      string    `json:"value"`
	InsertedAt time.Time `json:"inserted_at"`

	// seq orders entries by insertion so equal-similarity candidates
	// resolve deterministically: most recently inserted wins.
	seq uint64
}

// Stats reports cache performance counters
type Stats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Expired   int64     `json:"expired"`
	Evicted   int64     `json:"evicted"`
	Entries   int       `json:"entries"`
	HitRate   float64   `json:"hit_rate"`
	LastSweep time.Time `json:"last_sweep"`
}
