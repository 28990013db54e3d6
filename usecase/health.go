package usecase

import (
	"context"
	"runtime"
	"strings"
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/AzielCF/wa-amo-bridge/domains/health"
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const probeTimeout = 2 * time.Second

// HealthOptions lists what the detailed check probes. Nil probes are
// reported as disabled.
type HealthOptions struct {
	Env               string
	Version           string
	StartedAt         time.Time
	Database          func(ctx context.Context) error
	Valkey            func(ctx context.Context) error
	GupshupConfigured bool
	AmoConfigured     bool
	Tokens            TokenView
	Chats             domainChat.IChatStorageRepository
	Workers           func() msgworker.PoolStats
}

type healthService struct {
	opts HealthOptions
	now  func() time.Time
}

func NewHealthService(opts HealthOptions) health.IHealthUsecase {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	return &healthService{opts: opts, now: time.Now}
}

func (s *healthService) Summary(_ context.Context) health.Summary {
	now := s.now()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return health.Summary{
		Status:      health.StatusOk,
		Timestamp:   now.UTC(),
		Uptime:      now.Sub(s.opts.StartedAt).Seconds(),
		UptimeHuman: strings.TrimSpace(humanize.RelTime(s.opts.StartedAt, now, "", "")),
		MemoryHuman: humanize.Bytes(mem.Alloc),
		Env:         s.opts.Env,
		Version:     s.opts.Version,
	}
}

// Detailed probes every dependency. Only the database is critical; the
// others degrade functionality without making the service unhealthy.
func (s *healthService) Detailed(ctx context.Context) health.Detailed {
	out := health.Detailed{Summary: s.Summary(ctx)}

	database := s.probe(ctx, "database", s.opts.Database)
	if database.Status == health.StatusError {
		out.Status = health.StatusError
	}
	out.Checks = append(out.Checks,
		database,
		s.probe(ctx, "valkey", s.opts.Valkey),
		configuredCheck("gupshup", s.opts.GupshupConfigured),
		s.amoCheck(),
	)

	stats := map[string]any{}
	if s.opts.Chats != nil {
		if chatStats, err := s.opts.Chats.Stats(ctx); err == nil {
			stats["chats"] = chatStats
		}
	}
	if s.opts.Workers != nil {
		stats["workers"] = s.opts.Workers()
	}
	if len(stats) > 0 {
		out.Stats = stats
	}
	return out
}

func (s *healthService) Metrics(ctx context.Context) health.Metrics {
	now := s.now()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := health.Metrics{
		Timestamp:   now.UTC(),
		Uptime:      now.Sub(s.opts.StartedAt).Seconds(),
		MemoryBytes: mem.Alloc,
		MemoryHuman: humanize.Bytes(mem.Alloc),
		Goroutines:  runtime.NumGoroutine(),
	}
	if s.opts.Chats != nil {
		stats, err := s.opts.Chats.Stats(ctx)
		if err != nil {
			logrus.WithError(err).Error("[HEALTH] failed to read storage metrics")
		} else {
			out.Database = &stats
		}
	}
	return out
}

func (s *healthService) probe(ctx context.Context, name string, fn func(ctx context.Context) error) health.Check {
	if fn == nil {
		return health.Check{Name: name, Status: health.StatusUnknown, Message: "disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := s.now()
	err := fn(ctx)
	check := health.Check{Name: name, Status: health.StatusOk, LatencyMs: s.now().Sub(start).Milliseconds()}
	if err != nil {
		check.Status = health.StatusError
		check.Message = err.Error()
	}
	return check
}

func (s *healthService) amoCheck() health.Check {
	check := configuredCheck("amocrm", s.opts.AmoConfigured)
	if check.Status != health.StatusOk || s.opts.Tokens == nil {
		return check
	}
	state := s.opts.Tokens.State()
	check.Message = "token " + string(state)
	if state == domainCRM.TokenStateNone || state == domainCRM.TokenStateUnauthorized {
		check.Status = health.StatusError
	}
	return check
}

func configuredCheck(name string, configured bool) health.Check {
	if !configured {
		return health.Check{Name: name, Status: health.StatusUnknown, Message: "not configured"}
	}
	return health.Check{Name: name, Status: health.StatusOk, Message: "configured"}
}
