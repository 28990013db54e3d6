package webhook

import (
	"context"
	"net/url"
	"time"
)

type EventType string

const (
	EventIncomingMessage EventType = "incoming_message"
	EventMessageStatus   EventType = "message_status"
	EventUserEvent       EventType = "user_event"
)

// Event is the provider-neutral form of an inbound webhook delivery.
// Phone is always the normalized number of the WhatsApp user.
type Event struct {
	Type              EventType `json:"type"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ExternalID        string    `json:"external_id,omitempty"`
	Phone             string    `json:"phone"`
	Recipient         string    `json:"recipient,omitempty"`
	SenderName        string    `json:"sender_name,omitempty"`
	Content           string    `json:"content,omitempty"`
	MessageType       string    `json:"message_type,omitempty"`
	MediaURL          string    `json:"media_url,omitempty"`
	Status            string    `json:"status,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	UserEvent         string    `json:"user_event,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// AmoLeadChange is one lead referenced by a CRM webhook delivery.
type AmoLeadChange struct {
	LeadID     int64  `json:"lead_id"`
	StatusID   int64  `json:"status_id,omitempty"`
	PipelineID int64  `json:"pipeline_id,omitempty"`
	Action     string `json:"action"`
}

// IWebhookUsecase processes deliveries. Errors are for logging only; the
// HTTP layer acknowledges every delivery.
type IWebhookUsecase interface {
	HandleGupshup(ctx context.Context, body []byte, signature string) error
	HandleAmo(ctx context.Context, form url.Values) error
}
