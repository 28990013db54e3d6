package crm

import (
	"context"
	"time"
)

// TokenPair is the OAuth credential set used against the CRM API.
type TokenPair struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// TokenState tracks the OAuth lifecycle:
// no_token -> has_token -> unauthorized -> refreshing -> has_token.
type TokenState string

const (
	TokenStateNone         TokenState = "no_token"
	TokenStateValid        TokenState = "has_token"
	TokenStateUnauthorized TokenState = "unauthorized"
	TokenStateRefreshing   TokenState = "refreshing"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// NoteIcon is the marker prepended to note text for a direction.
func (d Direction) NoteIcon() string {
	if d == DirectionOutgoing {
		return "📤"
	}
	return "📥"
}

type EntityType string

const (
	EntityContact EntityType = "contact"
	EntityLead    EntityType = "lead"
)

// TagWhatsApp is attached to every contact and lead this bridge creates.
const TagWhatsApp = "WhatsApp"

type Contact struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Tags  []string `json:"tags"`
}

type Lead struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	ContactID  int64    `json:"contact_id"`
	PipelineID int64    `json:"pipeline_id,omitempty"`
	StatusID   int64    `json:"status_id,omitempty"`
	Price      int64    `json:"price"`
	Tags       []string `json:"tags"`
}

// Note is append-only; nothing in this system updates or deletes notes.
type Note struct {
	ID         int64      `json:"id,omitempty"`
	EntityID   int64      `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	Text       string     `json:"text"`
	Direction  Direction  `json:"direction,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// LeadFilter narrows lead lookup and placement. Zero values mean "any".
type LeadFilter struct {
	PipelineID int64 `json:"pipeline_id,omitempty"`
	StatusID   int64 `json:"status_id,omitempty"`
}

// ReconcileResult is returned instead of an error: CRM sync never fails the caller.
type ReconcileResult struct {
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	Phone          string   `json:"phone"`
	Contact        *Contact `json:"contact,omitempty"`
	Lead           *Lead    `json:"lead,omitempty"`
	Note           *Note    `json:"note,omitempty"`
	ContactCreated bool     `json:"contact_created"`
	LeadCreated    bool     `json:"lead_created"`
}

type Account struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Country   string `json:"country,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PipelineStatus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Sort int    `json:"sort"`
}

type Pipeline struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	IsMain   bool             `json:"is_main"`
	Statuses []PipelineStatus `json:"statuses"`
}

// ICRMClient is the subset of the CRM API the reconciler depends on.
type ICRMClient interface {
	FindContactByPhone(ctx context.Context, phone string) (*Contact, error)
	CreateContact(ctx context.Context, phone, name string) (*Contact, error)
	FindLead(ctx context.Context, contactID int64, filter LeadFilter) (*Lead, error)
	CreateLead(ctx context.Context, contactID int64, phone string, filter LeadFilter) (*Lead, error)
	AddNote(ctx context.Context, note Note) (*Note, error)
}

type IReconciler interface {
	ReconcileAndNote(ctx context.Context, phone, text string, direction Direction) ReconcileResult
}
