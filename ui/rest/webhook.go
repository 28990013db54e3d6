package rest

import (
	"net/url"
	"time"

	domainWebhook "github.com/AzielCF/wa-amo-bridge/domains/webhook"
	"github.com/AzielCF/wa-amo-bridge/integrations/gupshup"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Webhook receives provider deliveries. It is mounted outside basic auth and
// acknowledges every delivery with 200 so providers never retry.
type Webhook struct {
	Service domainWebhook.IWebhookUsecase
}

func InitRestWebhook(app fiber.Router, service domainWebhook.IWebhookUsecase) Webhook {
	rest := Webhook{Service: service}

	group := app.Group("/webhook")
	group.Post("/gupshup", rest.Gupshup)
	group.Post("/amo", rest.Amo)
	group.Post("/test", rest.Test)
	return rest
}

func (controller *Webhook) Gupshup(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	signature := c.Get(gupshup.SignatureHeader)
	process("gupshup", func() error {
		return controller.Service.HandleGupshup(c.UserContext(), body, signature)
	})
	return c.JSON(fiber.Map{"status": "OK"})
}

func (controller *Webhook) Amo(c *fiber.Ctx) error {
	form, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		logrus.WithError(err).Warn("[WEBHOOK] amocrm delivery is not form encoded")
		return c.JSON(fiber.Map{"status": "OK"})
	}
	process("amocrm", func() error {
		return controller.Service.HandleAmo(c.UserContext(), form)
	})
	return c.JSON(fiber.Map{"status": "OK"})
}

// process runs a delivery handler. Errors and panics are logged and never
// change the acknowledgement.
func process(source string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[WEBHOOK] panic while processing %s delivery: %v", source, r)
		}
	}()
	if err := fn(); err != nil {
		logrus.WithError(err).Warnf("[WEBHOOK] %s delivery not processed", source)
	}
}

func (controller *Webhook) Test(c *fiber.Ctx) error {
	logrus.Infof("[WEBHOOK] test delivery: %s", c.Body())
	return c.JSON(fiber.Map{"status": "OK", "timestamp": time.Now().UTC()})
}
