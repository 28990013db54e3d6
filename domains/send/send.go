package send

import (
	"context"
	"mime/multipart"
	"time"
)

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
)

// Result is what every provider call returns. Provider failures are reported
// through Success/Error, never as a Go error.
type Result struct {
	Success   bool           `json:"success"`
	MessageID string         `json:"messageId,omitempty"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type StatusResult struct {
	Success   bool           `json:"success"`
	Status    string         `json:"status,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type Template struct {
	ID           string `json:"id"`
	ElementName  string `json:"element_name"`
	LanguageCode string `json:"language_code"`
	Category     string `json:"category"`
	Status       string `json:"status"`
	Data         string `json:"data"`
}

type Media struct {
	Type       MediaType
	URL        string
	PreviewURL string
	Caption    string
	Filename   string
}

// IProvider is the outbound WhatsApp gateway.
type IProvider interface {
	Configured() bool
	SendText(ctx context.Context, phone, text string) Result
	SendMedia(ctx context.Context, phone string, media Media) Result
	SendTemplate(ctx context.Context, phone, templateID string, params []string) Result
	GetMessageStatus(ctx context.Context, messageID string) StatusResult
	ListTemplates(ctx context.Context) ([]Template, error)
	OptInUser(ctx context.Context, phone string) error
}

type MessageRequest struct {
	Phone   string `json:"phone" form:"phone"`
	Message string `json:"message" form:"message"`
}

type MediaRequest struct {
	Phone     string                `json:"phone" form:"phone"`
	MediaType MediaType             `json:"media_type" form:"media_type"`
	MediaURL  string                `json:"media_url" form:"media_url"`
	Caption   string                `json:"caption" form:"caption"`
	File      *multipart.FileHeader `json:"-" form:"file"`
}

type OptInRequest struct {
	Phone string `json:"phone" form:"phone"`
}

type TemplateRequest struct {
	Phone      string   `json:"phone" form:"phone"`
	TemplateID string   `json:"template_id" form:"template_id"`
	Params     []string `json:"params" form:"params"`
}

// CRMSendRequest sends a message on behalf of a CRM user and records it on
// the given lead (or contact when no lead is given).
type CRMSendRequest struct {
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	LeadID    int64  `json:"lead_id"`
	ContactID int64  `json:"contact_id"`
}

type Response struct {
	Result
	ChatID        string `json:"chat_id,omitempty"`
	LocalID       string `json:"local_id,omitempty"`
	Phone         string `json:"phone,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	PreviewURL    string `json:"preview_url,omitempty"`
	CRMNoteStatus string `json:"crm_note_status,omitempty"`
}

type ISendUsecase interface {
	SendText(ctx context.Context, request MessageRequest) (Response, error)
	SendMedia(ctx context.Context, request MediaRequest) (Response, error)
	SendTemplate(ctx context.Context, request TemplateRequest) (Response, error)
	SendFromCRM(ctx context.Context, request CRMSendRequest) (Response, error)
	MessageStatus(ctx context.Context, messageID string) (StatusResult, error)
	Templates(ctx context.Context) ([]Template, error)
	OptIn(ctx context.Context, request OptInRequest) (string, error)
}
