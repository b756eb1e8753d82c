package agent

import (
	"sync"
	"time"
)

// OperationTiming records how long one pipeline stage took
type OperationTiming struct {
	Operation  string  `json:"operation"`
	DurationMS float64 `json:"duration_ms"`
}

// TimingCollector accumulates per-stage timings for a single request. Safe
// for concurrent use since weather data stages run in parallel.
type TimingCollector struct {
	mu      sync.Mutex
	timings []OperationTiming
}

// NewTimingCollector creates an empty collector
func NewTimingCollector() *TimingCollector {
	return &TimingCollector{}
}

// Add records a completed stage
func (tc *TimingCollector) Add(operation string, duration time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.timings = append(tc.timings, OperationTiming{
		Operation:  operation,
		DurationMS: float64(duration.Microseconds()) / 1000,
	})
}

// Timings returns a copy of the recorded stages
func (tc *TimingCollector) Timings() []OperationTiming {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]OperationTiming, len(tc.timings))
	copy(out, tc.timings)
	return out
}

// track times fn and records it under operation
func track(tc *TimingCollector, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	tc.Add(operation, time.Since(start))
	return err
}
