package rest

import (
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	"github.com/gofiber/fiber/v2"
)

type Send struct {
	Service domainSend.ISendUsecase
}

func InitRestSend(app fiber.Router, service domainSend.ISendUsecase) Send {
	rest := Send{Service: service}

	app.Post("/send-message", rest.SendText)
	app.Post("/messages/send", rest.SendText)
	app.Post("/messages/send-media", rest.SendMedia)
	app.Post("/messages/send-template", rest.SendTemplate)
	app.Get("/messages/status/:message_id", rest.MessageStatus)
	app.Get("/messages/templates", rest.Templates)
	app.Post("/messages/opt-in", rest.OptIn)
	return rest
}

// Request bodies accept both snake_case and the camelCase names used by the
// bundled UI and older clients.
type sendTextBody struct {
	Phone       string `json:"phone" form:"phone"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Message     string `json:"message" form:"message"`
}

type sendMediaBody struct {
	Phone       string `json:"phone" form:"phone"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	MediaType   string `json:"media_type" form:"media_type"`
	MediaTypeJS string `json:"mediaType" form:"mediaType"`
	MediaURL    string `json:"media_url" form:"media_url"`
	MediaURLJS  string `json:"mediaUrl" form:"mediaUrl"`
	Caption     string `json:"caption" form:"caption"`
}

type sendTemplateBody struct {
	Phone          string   `json:"phone" form:"phone"`
	PhoneNumber    string   `json:"phoneNumber" form:"phoneNumber"`
	TemplateID     string   `json:"template_id" form:"template_id"`
	TemplateName   string   `json:"templateName" form:"templateName"`
	Params         []string `json:"params" form:"params"`
	TemplateParams []string `json:"templateParams" form:"templateParams"`
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (controller *Send) SendText(c *fiber.Ctx) error {
	var body sendTextBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	response, err := controller.Service.SendText(c.UserContext(), domainSend.MessageRequest{
		Phone:   pick(body.Phone, body.PhoneNumber),
		Message: body.Message,
	})
	return controller.reply(c, response, err)
}

func (controller *Send) SendMedia(c *fiber.Ctx) error {
	var body sendMediaBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	request := domainSend.MediaRequest{
		Phone:     pick(body.Phone, body.PhoneNumber),
		MediaType: domainSend.MediaType(pick(body.MediaType, body.MediaTypeJS)),
		MediaURL:  pick(body.MediaURL, body.MediaURLJS),
		Caption:   body.Caption,
	}
	if file, err := c.FormFile("file"); err == nil {
		request.File = file
	}

	response, err := controller.Service.SendMedia(c.UserContext(), request)
	return controller.reply(c, response, err)
}

func (controller *Send) SendTemplate(c *fiber.Ctx) error {
	var body sendTemplateBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	params := body.Params
	if len(params) == 0 {
		params = body.TemplateParams
	}
	response, err := controller.Service.SendTemplate(c.UserContext(), domainSend.TemplateRequest{
		Phone:      pick(body.Phone, body.PhoneNumber),
		TemplateID: pick(body.TemplateID, body.TemplateName),
		Params:     params,
	})
	return controller.reply(c, response, err)
}

func (controller *Send) MessageStatus(c *fiber.Ctx) error {
	status, err := controller.Service.MessageStatus(c.UserContext(), c.Params("message_id"))
	if err != nil {
		return providerError(c, err)
	}
	if !status.Success {
		return c.Status(fiber.StatusBadRequest).JSON(status)
	}
	return c.JSON(status)
}

func (controller *Send) Templates(c *fiber.Ctx) error {
	templates, err := controller.Service.Templates(c.UserContext())
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "templates": templates})
}

func (controller *Send) OptIn(c *fiber.Ctx) error {
	var body struct {
		Phone       string `json:"phone" form:"phone"`
		PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	phone, err := controller.Service.OptIn(c.UserContext(), domainSend.OptInRequest{Phone: pick(body.Phone, body.PhoneNumber)})
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "phone": phone})
}

// reply maps a send outcome: usecase errors keep their typed status, a
// provider rejection is a 400 with the provider's message.
func (controller *Send) reply(c *fiber.Ctx, response domainSend.Response, err error) error {
	if err != nil {
		return providerError(c, err)
	}
	if !response.Success {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": response.Error})
	}
	return c.JSON(response)
}
