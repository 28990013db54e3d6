package usecase

import (
	"context"
	"errors"
	"strings"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainRealtime "github.com/AzielCF/wa-amo-bridge/domains/realtime"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/AzielCF/wa-amo-bridge/validations"
	"github.com/sirupsen/logrus"
)

const searchLimit = 20

type serviceChat struct {
	repo      domainChat.IChatStorageRepository
	publisher domainRealtime.IPublisher
	crm       domainCRM.ICRMClient
}

// NewChatService builds the chat surface. crm may be nil, in which case
// contacts are only created locally.
func NewChatService(repo domainChat.IChatStorageRepository, publisher domainRealtime.IPublisher, crm domainCRM.ICRMClient) domainChat.IChatUsecase {
	if publisher == nil {
		publisher = domainRealtime.Nop{}
	}
	return &serviceChat{repo: repo, publisher: publisher, crm: crm}
}

func (service serviceChat) ListChats(ctx context.Context, page domainChat.Page) ([]domainChat.Chat, error) {
	if err := validations.ValidatePage(ctx, page); err != nil {
		return nil, err
	}
	return service.repo.ListChats(ctx, page)
}

func (service serviceChat) GetMessages(ctx context.Context, chatID string, page domainChat.Page) ([]domainChat.Message, error) {
	if err := validations.ValidatePage(ctx, page); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(chatID, "chat_") {
		return nil, pkgError.ValidationError("invalid chat id")
	}
	return service.repo.GetMessages(ctx, chatID, page)
}

func (service serviceChat) MarkRead(ctx context.Context, chatID string) error {
	if err := service.repo.MarkChatRead(ctx, chatID); err != nil {
		return err
	}
	service.publisher.Broadcast(domainRealtime.EventChatUpdated, map[string]any{
		"chat_id":      chatID,
		"unread_count": 0,
	})
	return nil
}

func (service serviceChat) ListContacts(ctx context.Context, page domainChat.Page) ([]domainChat.Contact, error) {
	if err := validations.ValidatePage(ctx, page); err != nil {
		return nil, err
	}
	return service.repo.ListContacts(ctx, page)
}

func (service serviceChat) SearchContacts(ctx context.Context, query string) ([]domainChat.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domainChat.Contact{}, nil
	}
	return service.repo.SearchContacts(ctx, query, searchLimit)
}

func (service serviceChat) GetContact(ctx context.Context, phone string) (domainChat.Contact, error) {
	return service.repo.GetContactByPhone(ctx, phone)
}

// CreateContact stores the contact and its chat, then finds or creates the
// CRM contact. A CRM failure is logged and the local contact is still returned.
func (service serviceChat) CreateContact(ctx context.Context, request domainChat.CreateContactRequest) (domainChat.Contact, error) {
	if err := validations.ValidateCreateChatContact(ctx, request); err != nil {
		return domainChat.Contact{}, err
	}
	phone := utils.NormalizePhone(request.Phone)
	name := strings.TrimSpace(request.Name)
	if name == "" {
		name = "Contact +" + phone
	}

	contact, err := service.repo.UpsertContact(ctx, domainChat.Contact{Phone: phone, Name: name})
	if err != nil {
		return domainChat.Contact{}, err
	}
	if _, err := service.repo.EnsureChat(ctx, phone, name); err != nil {
		return domainChat.Contact{}, err
	}

	if service.crm != nil {
		if amoContact, err := service.findOrCreateCRMContact(ctx, phone, name); err != nil {
			logrus.WithError(err).Warnf("[CHAT] CRM contact for %s not created", phone)
		} else if amoContact != nil {
			if err := service.repo.SetContactCRM(ctx, phone, amoContact.ID, 0); err != nil {
				return domainChat.Contact{}, err
			}
			contact.AmoContactID = amoContact.ID
		}
	}

	service.publisher.Broadcast(domainRealtime.EventChatUpdated, map[string]any{
		"chat_id":      contact.ChatID,
		"contact_name": contact.Name,
	})
	return contact, nil
}

func (service serviceChat) findOrCreateCRMContact(ctx context.Context, phone, name string) (*domainCRM.Contact, error) {
	found, err := service.crm.FindContactByPhone(ctx, phone)
	if err != nil || found != nil {
		return found, err
	}
	return service.crm.CreateContact(ctx, phone, name)
}

func (service serviceChat) UpdateContact(ctx context.Context, request domainChat.UpdateContactRequest) (domainChat.Contact, error) {
	if err := validations.ValidateUpdateContact(ctx, request); err != nil {
		return domainChat.Contact{}, err
	}
	contact, err := service.repo.UpdateContactName(ctx, request.Phone, strings.TrimSpace(request.Name))
	if err != nil {
		return domainChat.Contact{}, err
	}
	service.publisher.Broadcast(domainRealtime.EventChatUpdated, map[string]any{
		"chat_id":      contact.ChatID,
		"contact_name": contact.Name,
	})
	return contact, nil
}

// GetDialog returns the contact, its chat and the requested page of history.
func (service serviceChat) GetDialog(ctx context.Context, phone string, page domainChat.Page) (domainChat.Dialog, error) {
	if err := validations.ValidatePage(ctx, page); err != nil {
		return domainChat.Dialog{}, err
	}
	contact, err := service.repo.GetContactByPhone(ctx, phone)
	if err != nil {
		return domainChat.Dialog{}, err
	}
	chat, err := service.repo.GetChat(ctx, utils.ChatIDForPhone(contact.Phone))
	if err != nil {
		return domainChat.Dialog{}, err
	}
	messages, err := service.repo.GetMessages(ctx, chat.ID, page)
	if err != nil {
		return domainChat.Dialog{}, err
	}
	return domainChat.Dialog{Chat: chat, Contact: contact, Messages: messages}, nil
}

// ListDialogs pairs each chat with its contact. Messages are left empty;
// the chat carries its last message.
func (service serviceChat) ListDialogs(ctx context.Context, page domainChat.Page) ([]domainChat.Dialog, error) {
	chats, err := service.ListChats(ctx, page)
	if err != nil {
		return nil, err
	}
	dialogs := make([]domainChat.Dialog, 0, len(chats))
	for _, chat := range chats {
		contact, err := service.repo.GetContactByPhone(ctx, chat.ContactPhone)
		if err != nil {
			var notFound pkgError.NotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
			contact = domainChat.Contact{Phone: chat.ContactPhone, Name: chat.ContactName, ChatID: chat.ID}
		}
		dialogs = append(dialogs, domainChat.Dialog{Chat: chat, Contact: contact, Messages: []domainChat.Message{}})
	}
	return dialogs, nil
}
