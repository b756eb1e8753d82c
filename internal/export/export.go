// Package export writes semantic cache snapshots as Parquet files for
// offline analysis of what the caches hold and how old it is.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/semcache"
)

// SnapshotRow is one cache entry in an exported snapshot
type SnapshotRow struct {
	CacheName  string    `parquet:"cache_name" json:"cache_name"`
	KeyText    string    `parquet:"key_text" json:"key_text"`
	Embedding  []float64 `parquet:"embedding,list" json:"embedding"`
	Value      string    `parquet:"value" json:"value"`
	InsertedAt int64     `parquet:"inserted_at" json:"inserted_at"` // unix millis
}

// Config contains snapshot export configuration
type Config struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

// Exporter writes cache snapshots to the configured directory
type Exporter struct {
	config Config
	logger *zap.Logger
}

// NewExporter creates an exporter
func NewExporter(config Config, logger *zap.Logger) *Exporter {
	if config.Directory == "" {
		config.Directory = "exports"
	}
	return &Exporter{config: config, logger: logger}
}

// Export writes the given cache snapshots to a timestamped Parquet file and
// returns its path.
func (e *Exporter) Export(snapshots map[string][]semcache.Entry) (string, int, error) {
	if err := os.MkdirAll(e.config.Directory, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(e.config.Directory,
		fmt.Sprintf("semcache-%s.parquet", time.Now().UTC().Format("20060102T150405Z")))

	count, err := WriteSnapshot(path, snapshots)
	if err != nil {
		return "", 0, err
	}

	e.logger.Info("Semantic cache snapshot exported",
		zap.String("path", path),
		zap.Int("rows", count))
	return path, count, nil
}

// WriteSnapshot writes all entries to a single Parquet file
func WriteSnapshot(path string, snapshots map[string][]semcache.Entry) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewWriter(file)

	count := 0
	for cacheName, entries := range snapshots {
		for _, entry := range entries {
			row := SnapshotRow{
				CacheName:  cacheName,
				KeyText:    entry.KeyText,
				Embedding:  entry.Embedding,
				Value:      entry.Value,
				InsertedAt: entry.InsertedAt.UnixMilli(),
			}
			if err := writer.Write(&row); err != nil {
				return count, fmt.Errorf("failed to write snapshot row: %w", err)
			}
			count++
		}
	}

	if err := writer.Close(); err != nil {
		return count, fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return count, nil
}

// ReadSnapshot reads every row from a snapshot file
func ReadSnapshot(path string) ([]SnapshotRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var rows []SnapshotRow
	for {
		var row SnapshotRow
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
