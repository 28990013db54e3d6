package crm

import "context"

type AuthURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type ConnectionStatus struct {
	Success        bool       `json:"success"`
	Error          string     `json:"error,omitempty"`
	Account        string     `json:"account,omitempty"`
	UsersCount     int        `json:"users_count"`
	PipelinesCount int        `json:"pipelines_count"`
	TokenState     TokenState `json:"token_state"`
}

type TokenStatus struct {
	Configured      bool       `json:"configured"`
	State           TokenState `json:"state"`
	HasAccessToken  bool       `json:"has_access_token"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	ExpiresAt       string     `json:"expires_at,omitempty"`
}

type CreateContactRequest struct {
	Phone string `json:"phone" form:"phone"`
	Name  string `json:"name" form:"name"`
}

type CreateLeadRequest struct {
	ContactID  int64  `json:"contact_id" form:"contact_id"`
	Phone      string `json:"phone" form:"phone"`
	PipelineID int64  `json:"pipeline_id" form:"pipeline_id"`
	StatusID   int64  `json:"status_id" form:"status_id"`
}

// RoutingRequest sets the pipeline/status for new leads. Zero clears the
// override and falls back to the environment.
type RoutingRequest struct {
	PipelineID int64 `json:"pipeline_id" form:"pipeline_id"`
	StatusID   int64 `json:"status_id" form:"status_id"`
}

type AddNoteRequest struct {
	EntityID   int64      `json:"entity_id" form:"entity_id"`
	EntityType EntityType `json:"entity_type" form:"entity_type"`
	Text       string     `json:"text" form:"text"`
}

// IAmoUsecase backs the /api/amo surface and the amo CLI commands.
type IAmoUsecase interface {
	AuthURL(ctx context.Context) (AuthURLResponse, error)
	HandleCallback(ctx context.Context, code, state string) (TokenPair, error)
	ExchangeCode(ctx context.Context, code string) (TokenPair, error)
	RefreshToken(ctx context.Context) (TokenStatus, error)
	TokenStatus(ctx context.Context) TokenStatus
	TestConnection(ctx context.Context) ConnectionStatus
	ListPipelines(ctx context.Context) ([]Pipeline, error)
	ListUsers(ctx context.Context) ([]User, error)
	FindContact(ctx context.Context, phone string) (*Contact, error)
	CreateContact(ctx context.Context, request CreateContactRequest) (*Contact, error)
	GetLead(ctx context.Context, leadID int64) (*Lead, error)
	CreateLead(ctx context.Context, request CreateLeadRequest) (*Lead, error)
	AddNote(ctx context.Context, request AddNoteRequest) (*Note, error)
	Routing(ctx context.Context) LeadFilter
	SetRouting(ctx context.Context, request RoutingRequest) (LeadFilter, error)
}
