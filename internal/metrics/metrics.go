package metrics

import (
	"sync"
	"time"
)

/* Stats tallies chat pipeline outcomes in-process for the health report */
type Stats struct {
	mu sync.RWMutex

	totalQuestions int64
	answered       int64
	outcomes       map[string]int64

	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration

	startedAt time.Time
}

/* StatsSnapshot is a point-in-time copy of Stats */
type StatsSnapshot struct {
	TotalQuestions int64            `json:"total_questions"`
	Answered       int64            `json:"answered"`
	Outcomes       map[string]int64 `json:"outcomes"`
	AvgLatencyMs   int64            `json:"avg_latency_ms"`
	MinLatencyMs   int64            `json:"min_latency_ms"`
	MaxLatencyMs   int64            `json:"max_latency_ms"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
}

var globalStats = NewStats()

/* NewStats creates an empty tally */
func NewStats() *Stats {
	return &Stats{
		outcomes:  make(map[string]int64),
		startedAt: time.Now(),
	}
}

/* GlobalStats returns the process-wide tally */
func GlobalStats() *Stats {
	return globalStats
}

/* RecordQuestion records one pass through the chat pipeline; outcome "success" counts as answered */
func (s *Stats) RecordQuestion(outcome string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalQuestions++
	if outcome == "success" {
		s.answered++
	}
	s.outcomes[outcome]++
	s.totalLatency += latency

	if s.minLatency == 0 || latency < s.minLatency {
		s.minLatency = latency
	}
	if latency > s.maxLatency {
		s.maxLatency = latency
	}
}

/* Snapshot copies the current tally */
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avg time.Duration
	if s.totalQuestions > 0 {
		avg = s.totalLatency / time.Duration(s.totalQuestions)
	}

	outcomes := make(map[string]int64, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}

	return StatsSnapshot{
		TotalQuestions: s.totalQuestions,
		Answered:       s.answered,
		Outcomes:       outcomes,
		AvgLatencyMs:   avg.Milliseconds(),
		MinLatencyMs:   s.minLatency.Milliseconds(),
		MaxLatencyMs:   s.maxLatency.Milliseconds(),
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
	}
}

/* Reset clears the tally */
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalQuestions = 0
	s.answered = 0
	s.outcomes = make(map[string]int64)
	s.totalLatency = 0
	s.minLatency = 0
	s.maxLatency = 0
}
