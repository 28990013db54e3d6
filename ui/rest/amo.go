package rest

import (
	"errors"
	"fmt"
	"html"
	"strconv"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Amo struct {
	Service     domainCRM.IAmoUsecase
	Send        domainSend.ISendUsecase
	Development bool
}

func InitRestAmo(app fiber.Router, service domainCRM.IAmoUsecase, send domainSend.ISendUsecase, development bool) Amo {
	rest := Amo{Service: service, Send: send, Development: development}

	group := app.Group("/amo")
	group.Get("/auth", rest.Auth)
	group.Get("/callback", rest.Callback)
	group.Post("/refresh-token", rest.RefreshToken)
	group.Get("/test-connection", rest.TestConnection)
	group.Get("/status", rest.Status)

	group.Get("/contact/:phone", rest.FindContact)
	group.Post("/contact", rest.CreateContact)
	group.Get("/lead/:lead_id", rest.GetLead)
	group.Post("/lead", rest.CreateLead)
	group.Post("/lead/:lead_id/note", rest.AddNote)
	group.Get("/pipelines", rest.ListPipelines)
	group.Get("/users", rest.ListUsers)
	group.Post("/send-from-crm", rest.SendFromCRM)
	return rest
}

func (controller *Amo) Auth(c *fiber.Ctx) error {
	auth, err := controller.Service.AuthURL(c.UserContext())
	if err != nil {
		return providerError(c, err)
	}
	if controller.Development {
		c.Type("html", "utf-8")
		return c.SendString(fmt.Sprintf(
			`<html><body><h2>AmoCRM authorization</h2><p><a href="%s">Authorize the integration</a></p></body></html>`,
			html.EscapeString(auth.URL)))
	}
	return c.Redirect(auth.URL, fiber.StatusFound)
}

func (controller *Amo) Callback(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	if _, err := controller.Service.HandleCallback(c.UserContext(), c.Query("code"), c.Query("state")); err != nil {
		logrus.WithError(err).Error("[AMOCRM] authorization callback failed")
		status := fiber.StatusInternalServerError
		var generic pkgError.GenericError
		if errors.As(err, &generic) {
			status = generic.StatusCode()
		}
		return c.Status(status).SendString(fmt.Sprintf(
			`<html><body><h2>Authorization failed</h2><p>%s</p></body></html>`,
			html.EscapeString(err.Error())))
	}
	return c.SendString(`<html><body><h2>Authorization successful</h2><p>Tokens saved. You can close this window.</p></body></html>`)
}

func (controller *Amo) RefreshToken(c *fiber.Ctx) error {
	status, err := controller.Service.RefreshToken(c.UserContext())
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Token refreshed", "token": status})
}

func (controller *Amo) TestConnection(c *fiber.Ctx) error {
	status := controller.Service.TestConnection(c.UserContext())
	if !status.Success {
		return c.Status(fiber.StatusBadGateway).JSON(status)
	}
	return c.JSON(status)
}

func (controller *Amo) Status(c *fiber.Ctx) error {
	return c.JSON(controller.Service.TokenStatus(c.UserContext()))
}

func (controller *Amo) FindContact(c *fiber.Ctx) error {
	contact, err := controller.Service.FindContact(c.UserContext(), c.Params("phone"))
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "contact": contact})
}

func (controller *Amo) CreateContact(c *fiber.Ctx) error {
	var body struct {
		Phone       string `json:"phone"`
		PhoneNumber string `json:"phoneNumber"`
		Name        string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return providerError(c, pkgError.ValidationError(err.Error()))
	}
	contact, err := controller.Service.CreateContact(c.UserContext(), domainCRM.CreateContactRequest{
		Phone: pick(body.Phone, body.PhoneNumber),
		Name:  body.Name,
	})
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "contact": contact})
}

func (controller *Amo) GetLead(c *fiber.Ctx) error {
	id, err := leadIDParam(c)
	if err != nil {
		return providerError(c, err)
	}
	lead, err := controller.Service.GetLead(c.UserContext(), id)
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lead": lead})
}

func (controller *Amo) CreateLead(c *fiber.Ctx) error {
	var body struct {
		domainCRM.CreateLeadRequest
		ContactIDJS  int64  `json:"contactId"`
		PhoneNumber  string `json:"phoneNumber"`
		PipelineIDJS int64  `json:"pipelineId"`
		StatusIDJS   int64  `json:"statusId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return providerError(c, pkgError.ValidationError(err.Error()))
	}
	request := body.CreateLeadRequest
	request.Phone = pick(request.Phone, body.PhoneNumber)
	if request.ContactID == 0 {
		request.ContactID = body.ContactIDJS
	}
	if request.PipelineID == 0 {
		request.PipelineID = body.PipelineIDJS
	}
	if request.StatusID == 0 {
		request.StatusID = body.StatusIDJS
	}

	lead, err := controller.Service.CreateLead(c.UserContext(), request)
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "lead": lead})
}

func (controller *Amo) AddNote(c *fiber.Ctx) error {
	id, err := leadIDParam(c)
	if err != nil {
		return providerError(c, err)
	}
	var body struct {
		Text    string `json:"text"`
		Message string `json:"message"`
	}
	if err := c.BodyParser(&body); err != nil {
		return providerError(c, pkgError.ValidationError(err.Error()))
	}

	note, err := controller.Service.AddNote(c.UserContext(), domainCRM.AddNoteRequest{
		EntityID:   id,
		EntityType: domainCRM.EntityLead,
		Text:       pick(body.Text, body.Message),
	})
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "note": note})
}

func (controller *Amo) ListPipelines(c *fiber.Ctx) error {
	pipelines, err := controller.Service.ListPipelines(c.UserContext())
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "pipelines": pipelines})
}

func (controller *Amo) ListUsers(c *fiber.Ctx) error {
	users, err := controller.Service.ListUsers(c.UserContext())
	if err != nil {
		return providerError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "users": users})
}

func (controller *Amo) SendFromCRM(c *fiber.Ctx) error {
	var body struct {
		domainSend.CRMSendRequest
		PhoneNumber string `json:"phoneNumber"`
		LeadIDJS    int64  `json:"leadId"`
		ContactIDJS int64  `json:"contactId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return providerError(c, pkgError.ValidationError(err.Error()))
	}
	request := body.CRMSendRequest
	request.Phone = pick(request.Phone, body.PhoneNumber)
	if request.LeadID == 0 {
		request.LeadID = body.LeadIDJS
	}
	if request.ContactID == 0 {
		request.ContactID = body.ContactIDJS
	}

	response, err := controller.Send.SendFromCRM(c.UserContext(), request)
	if err != nil {
		return providerError(c, err)
	}
	if !response.Success {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": response.Error})
	}
	return c.JSON(response)
}

func leadIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("lead_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgError.ValidationError("lead_id must be a positive integer")
	}
	return id, nil
}
