package domain

import "time"

// NodeDescriptor is the immutable configuration of one Symbol REST endpoint.
// Health state is tracked separately by the registry.
type NodeDescriptor struct {
	URL      string        `json:"url" yaml:"url"`
	Name     string        `json:"name" yaml:"name"`
	Priority int           `json:"priority" yaml:"priority"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
	Region   string        `json:"region" yaml:"region"`
}

// NodeHealth is the runtime health record attached to a descriptor. It is
// mutated only by the registry, from probe results and live call outcomes.
type NodeHealth struct {
	Node              NodeDescriptor `json:"node"`
	Healthy           bool           `json:"healthy"`
	LastCheckedAt     time.Time      `json:"last_checked_at"`
	LastResponseTime  time.Duration  `json:"last_response_time"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	LastError         string         `json:"last_error,omitempty"`
}

// NodeStatistics is the registry-level observability summary.
type NodeStatistics struct {
	TotalNodes   int     `json:"total_nodes"`
	HealthyCount int     `json:"healthy_count"`
	TotalErrors  uint64  `json:"total_errors"`
	TotalCalls   uint64  `json:"total_calls"`
	UptimeRatio  float64 `json:"uptime_ratio"`
}
