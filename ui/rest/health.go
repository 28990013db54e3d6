package rest

import (
	"github.com/AzielCF/wa-amo-bridge/domains/health"
	"github.com/gofiber/fiber/v2"
)

type Health struct {
	Service health.IHealthUsecase
}

// InitRestHealth mounts GET /health on root (load balancer probe, no auth)
// and GET /health/detailed plus /health/metrics on the api router.
func InitRestHealth(root fiber.Router, api fiber.Router, service health.IHealthUsecase) Health {
	handler := Health{Service: service}

	root.Get("/health", handler.Summary)
	api.Get("/health/detailed", handler.Detailed)
	api.Get("/health/metrics", handler.Metrics)
	return handler
}

func (h *Health) Summary(c *fiber.Ctx) error {
	return c.JSON(h.Service.Summary(c.UserContext()))
}

func (h *Health) Detailed(c *fiber.Ctx) error {
	detailed := h.Service.Detailed(c.UserContext())
	if detailed.Status == health.StatusError {
		return c.Status(fiber.StatusServiceUnavailable).JSON(detailed)
	}
	return c.JSON(detailed)
}

func (h *Health) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.Service.Metrics(c.UserContext()))
}
