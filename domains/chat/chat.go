package chat

import (
	"context"
	"time"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message delivery states, in the order the provider reports them.
const (
	StatusReceived  = "received"
	StatusPending   = "pending"
	StatusEnqueued  = "enqueued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

const (
	ChatStatusActive = "active"
)

type Contact struct {
	Phone         string     `json:"phone_number"`
	Name          string     `json:"name"`
	AmoContactID  int64      `json:"amo_contact_id,omitempty"`
	AmoLeadID     int64      `json:"amo_lead_id,omitempty"`
	ChatID        string     `json:"chat_id"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Chat struct {
	ID           string    `json:"id"`
	ContactPhone string    `json:"contact_phone"`
	ContactName  string    `json:"contact_name"`
	Status       string    `json:"status"`
	UnreadCount  int       `json:"unread_count"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Message struct {
	ID                string    `json:"id"`
	ChatID            string    `json:"chat_id"`
	Direction         Direction `json:"direction"`
	Sender            string    `json:"sender"`
	Recipient         string    `json:"recipient"`
	Content           string    `json:"content"`
	MessageType       string    `json:"message_type"`
	MediaURL          string    `json:"media_url,omitempty"`
	Status            string    `json:"status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	AmoLeadID         int64     `json:"amo_lead_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

type Stats struct {
	Contacts        int64 `json:"contacts"`
	Chats           int64 `json:"chats"`
	Messages        int64 `json:"messages"`
	MessagesLast24h int64 `json:"messages_24h"`
	FailedMessages  int64 `json:"failed_messages"`
}

// Page bounds list queries. Zero Limit means the repository default.
type Page struct {
	Limit  int `json:"limit" query:"limit"`
	Offset int `json:"offset" query:"offset"`
}

type IChatStorageRepository interface {
	InitializeSchema(ctx context.Context) error

	UpsertContact(ctx context.Context, contact Contact) (Contact, error)
	GetContactByPhone(ctx context.Context, phone string) (Contact, error)
	ListContacts(ctx context.Context, page Page) ([]Contact, error)
	SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error)
	UpdateContactName(ctx context.Context, phone, name string) (Contact, error)
	SetContactCRM(ctx context.Context, phone string, amoContactID, amoLeadID int64) error

	EnsureChat(ctx context.Context, phone, name string) (Chat, error)
	GetChat(ctx context.Context, chatID string) (Chat, error)
	ListChats(ctx context.Context, page Page) ([]Chat, error)
	MarkChatRead(ctx context.Context, chatID string) error

	CreateMessage(ctx context.Context, message *Message) error
	GetMessages(ctx context.Context, chatID string, page Page) ([]Message, error)
	UpdateMessageStatusByProviderID(ctx context.Context, providerID, status string) (*Message, error)
	SetMessageAmoLead(ctx context.Context, messageID string, amoLeadID int64) error
	ChatIDsForLead(ctx context.Context, amoLeadID int64) ([]string, error)

	Stats(ctx context.Context) (Stats, error)
}

// Dialog is a chat with its contact and message history.
type Dialog struct {
	Chat     Chat      `json:"chat"`
	Contact  Contact   `json:"contact"`
	Messages []Message `json:"messages"`
}

type CreateContactRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type UpdateContactRequest struct {
	Phone string `json:"phone" uri:"phone"`
	Name  string `json:"name"`
}

type IChatUsecase interface {
	ListChats(ctx context.Context, page Page) ([]Chat, error)
	GetMessages(ctx context.Context, chatID string, page Page) ([]Message, error)
	MarkRead(ctx context.Context, chatID string) error
	ListContacts(ctx context.Context, page Page) ([]Contact, error)
	SearchContacts(ctx context.Context, query string) ([]Contact, error)
	GetContact(ctx context.Context, phone string) (Contact, error)
	CreateContact(ctx context.Context, request CreateContactRequest) (Contact, error)
	UpdateContact(ctx context.Context, request UpdateContactRequest) (Contact, error)
	GetDialog(ctx context.Context, phone string, page Page) (Dialog, error)
	ListDialogs(ctx context.Context, page Page) ([]Dialog, error)
}
