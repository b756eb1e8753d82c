// Package vector persists semantic cache entries to Postgres so a restarted
// instance starts with a warm cache instead of an empty one.
package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/semcache"
)

const schema = `
CREATE TABLE IF NOT EXISTS semantic_entries (
	id BIGSERIAL PRIMARY KEY,
	cache_name TEXT NOT NULL,
	key_text TEXT NOT NULL,
	embedding TEXT NOT NULL,
	value TEXT NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS semantic_entries_cache_name_idx ON semantic_entries (cache_name);`

// Store handles warm-store persistence for semantic cache entries
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to Postgres and ensures the schema exists
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := NewStoreWithDB(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize warm store: %w", err)
	}

	logger.Info("Warm store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// NewStoreWithDB wraps an existing connection; the caller owns the schema.
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveEntries replaces the persisted snapshot for cacheName with entries.
// Runs in one transaction so a crash mid-save never leaves a half snapshot.
func (s *Store) SaveEntries(ctx context.Context, cacheName string, entries []semcache.Entry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM semantic_entries WHERE cache_name = $1", cacheName); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	const insert = `
		INSERT INTO semantic_entries (cache_name, key_text, embedding, value, inserted_at)
		VALUES ($1, $2, $3, $4, $5)`

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, insert,
			cacheName,
			entry.KeyText,
			formatEmbedding(entry.Embedding),
			entry.Value,
			entry.InsertedAt,
		); err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Info("Semantic cache snapshot saved",
		zap.String("cache_name", cacheName),
		zap.Int("entries", len(entries)))
	return nil
}

// LoadEntries reads the persisted snapshot for cacheName. Rows with an
// unparseable embedding are skipped with a warning rather than failing the
// whole load.
func (s *Store) LoadEntries(ctx context.Context, cacheName string) ([]semcache.Entry, error) {
	var rows []StoredEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, cache_name, key_text, embedding, value, inserted_at
		FROM semantic_entries
		WHERE cache_name = $1
		ORDER BY inserted_at`, cacheName)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	entries := make([]semcache.Entry, 0, len(rows))
	for _, row := range rows {
		embedding, err := parseEmbedding(row.Embedding)
		if err != nil {
			s.logger.Warn("Skipping entry with bad embedding",
				zap.Int64("id", row.ID), zap.Error(err))
			continue
		}
		entries = append(entries, semcache.Entry{
			KeyText:    row.KeyText,
			Embedding:  embedding,
			Value:      row.Value,
			InsertedAt: row.InsertedAt,
		})
	}

	s.logger.Info("Semantic cache snapshot loaded",
		zap.String("cache_name", cacheName),
		zap.Int("entries", len(entries)))
	return entries, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// formatEmbedding renders a vector as "[v1,v2,...]" for storage
func formatEmbedding(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding parses the "[v1,v2,...]" storage format
func parseEmbedding(text string) ([]float64, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed embedding literal")
	}
	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return nil, fmt.Errorf("empty embedding literal")
	}

	parts := strings.Split(inner, ",")
	embedding := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("bad embedding component %d: %w", i, err)
		}
		embedding[i] = v
	}
	return embedding, nil
}

// maskDatabaseURL masks credentials in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if idx := strings.LastIndex(userPart, ":"); idx > strings.Index(userPart, "//") {
				parts[0] = userPart[:idx+1] + "***"
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
