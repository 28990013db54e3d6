package rest

import (
	"context"
	"net/http"
	"testing"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	"github.com/AzielCF/wa-amo-bridge/domains/health"
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

type fakeHealth struct {
	status health.Status
}

func (f fakeHealth) Summary(context.Context) health.Summary {
	return health.Summary{Status: health.StatusOk, Env: "test"}
}

func (f fakeHealth) Detailed(context.Context) health.Detailed {
	return health.Detailed{
		Summary: health.Summary{Status: f.status},
		Checks:  []health.Check{{Name: "database", Status: f.status}},
	}
}

func (f fakeHealth) Metrics(context.Context) health.Metrics {
	return health.Metrics{Goroutines: 3, Database: &domainChat.Stats{Messages: 10, MessagesLast24h: 4, FailedMessages: 1}}
}

func TestHealthMetrics(t *testing.T) {
	app := fiber.New()
	InitRestHealth(app, app.Group("/api"), fakeHealth{status: health.StatusOk})

	resp, body := do(t, app, http.MethodGet, "/api/health/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"goroutines":3`)
	assert.Contains(t, body, `"messages_24h":4`)
	assert.Contains(t, body, `"failed_messages":1`)

	resp, _ = do(t, app, http.MethodGet, "/health/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthRoutes(t *testing.T) {
	app := fiber.New()
	InitRestHealth(app, app.Group("/api"), fakeHealth{status: health.StatusOk})

	resp, body := do(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"env":"test"`)

	resp, body = do(t, app, http.MethodGet, "/api/health/detailed", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"name":"database"`)
}

func TestHealthDetailed_DatabaseDown(t *testing.T) {
	app := fiber.New()
	InitRestHealth(app, app.Group("/api"), fakeHealth{status: health.StatusError})

	resp, _ := do(t, app, http.MethodGet, "/api/health/detailed", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMonitoringRoutes(t *testing.T) {
	app := fiber.New()
	InitRestMonitoring(app.Group("/api"), nil)

	resp, body := do(t, app, http.MethodGet, "/api/monitor/sync", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"total_inbound"`)

	resp, _ = do(t, app, http.MethodGet, "/api/monitor/workers", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	pool := msgworker.NewPool(2, 4)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	app = fiber.New()
	InitRestMonitoring(app.Group("/api"), pool)
	resp, body = do(t, app, http.MethodGet, "/api/monitor/workers", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"num_workers":2`)
}
