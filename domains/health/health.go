package health

import (
	"context"
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
)

type Status string

const (
	StatusOk      Status = "OK"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

// Check is the outcome of probing one dependency.
type Check struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type Summary struct {
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      float64   `json:"uptime"`
	UptimeHuman string    `json:"uptime_human"`
	MemoryHuman string    `json:"memory_human"`
	Env         string    `json:"env"`
	Version     string    `json:"version"`
}

type Detailed struct {
	Summary
	Checks []Check        `json:"checks"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// Metrics is the monitoring snapshot: process figures plus storage counts.
// Database is nil when the counts could not be read.
type Metrics struct {
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      float64           `json:"uptime"`
	MemoryBytes uint64            `json:"memory_bytes"`
	MemoryHuman string            `json:"memory_human"`
	Goroutines  int               `json:"goroutines"`
	Database    *domainChat.Stats `json:"database,omitempty"`
}

type IHealthUsecase interface {
	Summary(ctx context.Context) Summary
	Detailed(ctx context.Context) Detailed
	Metrics(ctx context.Context) Metrics
}
