package rest

import (
	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/gofiber/fiber/v2"
)

type Chat struct {
	Service domainChat.IChatUsecase
}

func InitRestChat(app fiber.Router, service domainChat.IChatUsecase) Chat {
	rest := Chat{Service: service}

	app.Get("/chats", rest.ListChats)
	app.Get("/chats/:chat_id/messages", rest.GetMessages)
	app.Post("/chats/:chat_id/read", rest.MarkRead)
	app.Get("/messages/chat/:chat_id", rest.GetMessages)
	app.Post("/messages/mark-read", rest.MarkReadBody)

	app.Get("/contacts", rest.ListContacts)
	app.Post("/contacts", rest.CreateContact)
	app.Get("/contacts/search/:query", rest.SearchContacts)
	app.Get("/contacts/:phone", rest.GetContact)
	app.Put("/contacts/:phone", rest.UpdateContact)

	app.Get("/dialog/:phone", rest.GetDialog)
	app.Get("/dialogs", rest.ListDialogs)
	return rest
}

func parsePage(c *fiber.Ctx) (domainChat.Page, error) {
	var page domainChat.Page
	if err := c.QueryParser(&page); err != nil {
		return page, pkgError.ValidationError("invalid paging: " + err.Error())
	}
	return page, nil
}

func (controller *Chat) ListChats(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return errorResponse(c, err)
	}
	chats, err := controller.Service.ListChats(c.UserContext(), page)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success get chats", chats)
}

func (controller *Chat) GetMessages(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return errorResponse(c, err)
	}
	messages, err := controller.Service.GetMessages(c.UserContext(), c.Params("chat_id"), page)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success get messages", messages)
}

func (controller *Chat) MarkRead(c *fiber.Ctx) error {
	if err := controller.Service.MarkRead(c.UserContext(), c.Params("chat_id")); err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Chat marked as read", nil)
}

// MarkReadBody accepts {"chat_id"} or {"chatId"} in the body.
func (controller *Chat) MarkReadBody(c *fiber.Ctx) error {
	var body struct {
		ChatID   string `json:"chat_id"`
		ChatIDJS string `json:"chatId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return errorResponse(c, pkgError.ValidationError(err.Error()))
	}
	if err := controller.Service.MarkRead(c.UserContext(), pick(body.ChatID, body.ChatIDJS)); err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Chat marked as read", nil)
}

func (controller *Chat) ListContacts(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return errorResponse(c, err)
	}
	contacts, err := controller.Service.ListContacts(c.UserContext(), page)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success get contacts", contacts)
}

func (controller *Chat) SearchContacts(c *fiber.Ctx) error {
	contacts, err := controller.Service.SearchContacts(c.UserContext(), c.Params("query"))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success search contacts", contacts)
}

func (controller *Chat) GetContact(c *fiber.Ctx) error {
	contact, err := controller.Service.GetContact(c.UserContext(), c.Params("phone"))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success get contact", contact)
}

func (controller *Chat) CreateContact(c *fiber.Ctx) error {
	var body struct {
		Phone       string `json:"phone"`
		PhoneNumber string `json:"phoneNumber"`
		Name        string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return errorResponse(c, pkgError.ValidationError(err.Error()))
	}

	contact, err := controller.Service.CreateContact(c.UserContext(), domainChat.CreateContactRequest{
		Phone: pick(body.Phone, body.PhoneNumber),
		Name:  body.Name,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Contact created", contact)
}

func (controller *Chat) UpdateContact(c *fiber.Ctx) error {
	var request domainChat.UpdateContactRequest
	if err := c.BodyParser(&request); err != nil {
		return errorResponse(c, pkgError.ValidationError(err.Error()))
	}
	request.Phone = c.Params("phone")

	contact, err := controller.Service.UpdateContact(c.UserContext(), request)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Contact updated", contact)
}

func (controller *Chat) GetDialog(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return errorResponse(c, err)
	}
	dialog, err := controller.Service.GetDialog(c.UserContext(), c.Params("phone"), page)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success get dialog", dialog)
}

func (controller *Chat) ListDialogs(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return errorResponse(c, err)
	}
	dialogs, err := controller.Service.ListDialogs(c.UserContext(), page)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, "Success get dialogs", dialogs)
}
