package vector

import "time"

// StoredEntry is a persisted semantic cache entry
type StoredEntry struct {
	ID         int64     `db:"id" json:"id"`
	CacheName  string    `db:"cache_name" json:"cache_name"`
	KeyText    string    `db:"key_text" json:"key_text"`
	Embedding  string    `db:"embedding" json:"embedding"`
	Value      string    `db:"value" json:"value"`
	InsertedAt time.Time `db:"inserted_at" json:"inserted_at"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}
