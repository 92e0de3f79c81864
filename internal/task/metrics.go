package task

import (
	"sync"
	"time"
)

// Metrics tracks transform runs across every run of a Runner.
type Metrics struct {
	mu    sync.Mutex
	stats MetricsSnapshot
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record records a transform result.
func (m *Metrics) Record(result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.stats
	s.TotalRuns++
	s.TotalDuration += result.Duration
	if result.Err != nil {
		s.FailedRuns++
	} else {
		s.SuccessfulRuns++
	}
	s.AverageDuration = s.TotalDuration / time.Duration(s.TotalRuns)
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// SuccessRate returns the share of successful runs as a percentage.
func (s MetricsSnapshot) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.SuccessfulRuns) / float64(s.TotalRuns) * 100
}
