package rest

import (
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/gofiber/fiber/v2"
)

type Settings struct {
	Service domainCRM.IAmoUsecase
}

func InitRestSettings(app fiber.Router, service domainCRM.IAmoUsecase) Settings {
	rest := Settings{Service: service}

	app.Get("/settings/crm-routing", rest.GetCRMRouting)
	app.Put("/settings/crm-routing", rest.UpdateCRMRouting)
	return rest
}

func (controller *Settings) GetCRMRouting(c *fiber.Ctx) error {
	return success(c, "Success get CRM routing", controller.Service.Routing(c.UserContext()))
}

func (controller *Settings) UpdateCRMRouting(c *fiber.Ctx) error {
	var request domainCRM.RoutingRequest
	if err := c.BodyParser(&request); err != nil {
		return errorResponse(c, pkgError.ValidationError(err.Error()))
	}
	filter, err := controller.Service.SetRouting(c.UserContext(), request)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "CRM routing updated", filter)
}
