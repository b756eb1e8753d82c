package events

import "time"

// EventType identifies a live event stream category
type EventType string

const (
	// EventTypeCacheHit fires when a semantic cache serves a stored answer
	EventTypeCacheHit EventType = "cache_hit"
	// EventTypeCacheMiss fires when a lookup falls through to the model
	EventTypeCacheMiss EventType = "cache_miss"
	// EventTypeCacheStore fires when a fresh answer is cached
	EventTypeCacheStore EventType = "cache_store"
	// EventTypeRequestLog fires for every completed chat request
	EventTypeRequestLog EventType = "request_log"
	// EventTypeConnection fires on monitor connect and disconnect
	EventTypeConnection EventType = "connection"
)

// Event is one message pushed to connected monitors
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// RequestLogEvent summarizes one completed chat request
type RequestLogEvent struct {
	RequestID    string        `json:"request_id"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	StatusCode   int           `json:"status_code"`
	ClientIP     string        `json:"client_ip"`
	Duration     time.Duration `json:"duration"`
	ResponseType string        `json:"response_type,omitempty"`
}

// ConnectionEvent marks a monitor connecting or disconnecting
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage is a message received from a monitor
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which event types a monitor receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Config controls which event categories are broadcast at all
type Config struct {
	Enabled              bool `yaml:"enabled" mapstructure:"enabled"`
	BroadcastCacheEvents bool `yaml:"broadcast_cache_events" mapstructure:"broadcast_cache_events"`
	BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
	BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// Stats tracks hub counters
type Stats struct {
	TotalConnections  int64     `json:"total_connections"`
	ActiveConnections int64     `json:"active_connections"`
	TotalMessages     int64     `json:"total_messages"`
	TotalBroadcasts   int64     `json:"total_broadcasts"`
	LastBroadcastTime time.Time `json:"last_broadcast_time"`
}
