package syncmonitor

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	StageInbound  = "inbound"
	StageOutbound = "outbound"
	StageRefresh  = "refresh"
	StageWebhook  = "webhook"

	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	Phone          string    `json:"phone,omitempty"`
	Stage          string    `json:"stage"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	ContactID      int64     `json:"contact_id,omitempty"`
	LeadID         int64     `json:"lead_id,omitempty"`
	ContactCreated bool      `json:"contact_created,omitempty"`
	LeadCreated    bool      `json:"lead_created,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

type Stats struct {
	TotalInbound    int64   `json:"total_inbound"`
	TotalOutbound   int64   `json:"total_outbound"`
	TotalRefreshes  int64   `json:"total_refreshes"`
	ContactsCreated int64   `json:"contacts_created"`
	LeadsCreated    int64   `json:"leads_created"`
	TotalErrors     int64   `json:"total_errors"`
	RecentEvents    []Event `json:"recent_events"`
}

// Monitor keeps the last N sync events in a ring buffer plus running totals.
type Monitor struct {
	ttl time.Duration

	eventsMu sync.Mutex
	events   []Event
	idx      int
	count    int

	totalInbound    int64
	totalOutbound   int64
	totalRefreshes  int64
	contactsCreated int64
	leadsCreated    int64
	totalErrors     int64
}

// New creates a monitor holding size events; events older than ttl are
// hidden from GetStats (0 keeps them).
func New(size int, ttl time.Duration) *Monitor {
	if size <= 0 {
		size = 200
	}
	return &Monitor{events: make([]Event, size), ttl: ttl}
}

func (m *Monitor) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	ok := e.Status == StatusOK
	switch e.Stage {
	case StageInbound:
		if ok {
			atomic.AddInt64(&m.totalInbound, 1)
		}
	case StageOutbound:
		if ok {
			atomic.AddInt64(&m.totalOutbound, 1)
		}
	case StageRefresh:
		if ok {
			atomic.AddInt64(&m.totalRefreshes, 1)
		}
	}
	if e.ContactCreated {
		atomic.AddInt64(&m.contactsCreated, 1)
	}
	if e.LeadCreated {
		atomic.AddInt64(&m.leadsCreated, 1)
	}
	if e.Status == StatusError {
		atomic.AddInt64(&m.totalErrors, 1)
	}

	m.eventsMu.Lock()
	m.events[m.idx] = e
	m.idx = (m.idx + 1) % len(m.events)
	if m.count < len(m.events) {
		m.count++
	}
	m.eventsMu.Unlock()
}

// GetStats returns totals and the buffered events, oldest first.
func (m *Monitor) GetStats() Stats {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	var cutoff time.Time
	if m.ttl > 0 {
		cutoff = time.Now().UTC().Add(-m.ttl)
	}
	start := (m.idx - m.count + len(m.events)) % len(m.events)
	res := make([]Event, 0, m.count)
	for i := 0; i < m.count; i++ {
		e := m.events[(start+i)%len(m.events)]
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		res = append(res, e)
	}

	return Stats{
		TotalInbound:    atomic.LoadInt64(&m.totalInbound),
		TotalOutbound:   atomic.LoadInt64(&m.totalOutbound),
		TotalRefreshes:  atomic.LoadInt64(&m.totalRefreshes),
		ContactsCreated: atomic.LoadInt64(&m.contactsCreated),
		LeadsCreated:    atomic.LoadInt64(&m.leadsCreated),
		TotalErrors:     atomic.LoadInt64(&m.totalErrors),
		RecentEvents:    res,
	}
}

var defaultMonitor = New(envInt("SYNC_MONITOR_BUFFER", 200), envDuration("SYNC_MONITOR_TTL", 0))

func Record(e Event) {
	defaultMonitor.Record(e)
}

func GetStats() Stats {
	return defaultMonitor.GetStats()
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts a Go duration or a number of seconds.
func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}
