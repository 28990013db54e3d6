package rest

import (
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/AzielCF/wa-amo-bridge/pkg/syncmonitor"
	"github.com/gofiber/fiber/v2"
)

type MonitoringHandler struct {
	pool *msgworker.Pool
}

// InitRestMonitoring exposes the CRM sync feed and the worker pool state.
func InitRestMonitoring(app fiber.Router, pool *msgworker.Pool) {
	h := &MonitoringHandler{pool: pool}

	g := app.Group("/monitor")
	g.Get("/sync", h.GetSyncStats)
	g.Get("/workers", h.GetWorkerStats)
}

func (h *MonitoringHandler) GetSyncStats(c *fiber.Ctx) error {
	return c.JSON(syncmonitor.GetStats())
}

func (h *MonitoringHandler) GetWorkerStats(c *fiber.Ctx) error {
	if h.pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "worker pool not initialized"})
	}
	return c.JSON(h.pool.GetStats())
}
