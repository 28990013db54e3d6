package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/wa-amo-bridge/core/settings/application"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainSecret "github.com/AzielCF/wa-amo-bridge/domains/secret"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/syncmonitor"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/AzielCF/wa-amo-bridge/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	oauthStatePrefix = "whatsapp_integration_"
	oauthStateTTL    = 15 * time.Minute
)

// AmoGateway is the CRM client surface the amo service drives.
type AmoGateway interface {
	domainCRM.ICRMClient
	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (domainCRM.TokenPair, error)
	RefreshAccessToken(ctx context.Context) (domainCRM.TokenPair, error)
	GetAccount(ctx context.Context) (*domainCRM.Account, error)
	ListUsers(ctx context.Context) ([]domainCRM.User, error)
	ListPipelines(ctx context.Context) ([]domainCRM.Pipeline, error)
	GetLead(ctx context.Context, id int64) (*domainCRM.Lead, error)
}

// TokenView exposes the current OAuth state without allowing mutation.
type TokenView interface {
	Current() domainCRM.TokenPair
	State() domainCRM.TokenState
}

// RoutingStore persists pipeline/status overrides.
type RoutingStore interface {
	GetCRMRouting(ctx context.Context) (*application.CRMRouting, error)
	SetCRMRouting(ctx context.Context, pipelineID, statusID int64) error
}

type serviceAmo struct {
	client     AmoGateway
	tokens     TokenView
	routing    RoutingStore
	fallback   domainCRM.LeadFilter
	states     domainSecret.IStateStore
	configured bool
}

// NewAmoService exposes the CRM surface. When configured is false every call
// that needs the CRM answers NotConfiguredError. States issued by AuthURL
// are checked by HandleCallback.
func NewAmoService(client AmoGateway, tokens TokenView, routing RoutingStore, fallback domainCRM.LeadFilter, states domainSecret.IStateStore, configured bool) domainCRM.IAmoUsecase {
	return &serviceAmo{
		client:     client,
		tokens:     tokens,
		routing:    routing,
		fallback:   fallback,
		states:     states,
		configured: configured && client != nil && states != nil,
	}
}

// RoutingFilter resolves the lead filter on every call: stored overrides win
// over the environment defaults.
func RoutingFilter(store RoutingStore, fallback domainCRM.LeadFilter) func(ctx context.Context) domainCRM.LeadFilter {
	return func(ctx context.Context) domainCRM.LeadFilter {
		filter := fallback
		if store == nil {
			return filter
		}
		r, err := store.GetCRMRouting(ctx)
		if err != nil {
			logrus.WithError(err).Warn("[AMOCRM] failed to read routing settings, using defaults")
			return filter
		}
		if r.PipelineID != nil {
			filter.PipelineID = *r.PipelineID
		}
		if r.StatusID != nil {
			filter.StatusID = *r.StatusID
		}
		return filter
	}
}

func (service serviceAmo) ensure() error {
	if !service.configured {
		return pkgError.NotConfiguredError("amocrm is not configured")
	}
	return nil
}

func (service serviceAmo) AuthURL(ctx context.Context) (domainCRM.AuthURLResponse, error) {
	if err := service.ensure(); err != nil {
		return domainCRM.AuthURLResponse{}, err
	}
	state := oauthStatePrefix + uuid.NewString()
	u, err := service.client.AuthURL(state)
	if err != nil {
		return domainCRM.AuthURLResponse{}, pkgError.NotConfiguredError(err.Error())
	}
	if err := service.states.Save(ctx, state, oauthStateTTL); err != nil {
		return domainCRM.AuthURLResponse{}, pkgError.InternalServerError(fmt.Sprintf("save oauth state: %v", err))
	}
	return domainCRM.AuthURLResponse{URL: u, State: state}, nil
}

// HandleCallback completes the browser flow. The state must be one issued by
// AuthURL, unexpired and not used before.
func (service serviceAmo) HandleCallback(ctx context.Context, code, state string) (domainCRM.TokenPair, error) {
	if err := service.ensure(); err != nil {
		return domainCRM.TokenPair{}, err
	}
	if code == "" {
		return domainCRM.TokenPair{}, pkgError.ValidationError("code is required")
	}
	if state == "" {
		return domainCRM.TokenPair{}, pkgError.ValidationError("state is required")
	}
	ok, err := service.states.Consume(ctx, state)
	if err != nil {
		return domainCRM.TokenPair{}, pkgError.InternalServerError(fmt.Sprintf("check oauth state: %v", err))
	}
	if !ok {
		return domainCRM.TokenPair{}, pkgError.ValidationError("unknown or expired oauth state")
	}
	return service.ExchangeCode(ctx, code)
}

// ExchangeCode trades a code copied from the AmoCRM integration settings for
// tokens. It is operator driven and carries no state.
func (service serviceAmo) ExchangeCode(ctx context.Context, code string) (domainCRM.TokenPair, error) {
	if err := service.ensure(); err != nil {
		return domainCRM.TokenPair{}, err
	}
	if code == "" {
		return domainCRM.TokenPair{}, pkgError.ValidationError("code is required")
	}
	pair, err := service.client.ExchangeCode(ctx, code)
	if err != nil {
		return domainCRM.TokenPair{}, upstream(err)
	}
	return pair, nil
}

func (service serviceAmo) RefreshToken(ctx context.Context) (domainCRM.TokenStatus, error) {
	if err := service.ensure(); err != nil {
		return domainCRM.TokenStatus{}, err
	}
	if _, err := service.client.RefreshAccessToken(ctx); err != nil {
		return service.TokenStatus(ctx), upstream(err)
	}
	return service.TokenStatus(ctx), nil
}

// RecordTokenRefresh is the CRM client's refresh hook. Manual and
// 401-triggered refreshes both land in the sync monitor.
func RecordTokenRefresh(err error) {
	event := syncmonitor.Event{Stage: syncmonitor.StageRefresh, Status: syncmonitor.StatusOK}
	if err != nil {
		event.Status = syncmonitor.StatusError
		event.Error = err.Error()
		logrus.WithError(err).Error("[AMOCRM] token refresh failed")
	}
	syncmonitor.Record(event)
}

func (service serviceAmo) TokenStatus(_ context.Context) domainCRM.TokenStatus {
	status := domainCRM.TokenStatus{Configured: service.configured, State: domainCRM.TokenStateNone}
	if service.tokens == nil {
		return status
	}
	pair := service.tokens.Current()
	status.State = service.tokens.State()
	status.HasAccessToken = pair.AccessToken != ""
	status.HasRefreshToken = pair.RefreshToken != ""
	if pair.ExpiresAt != nil {
		status.ExpiresAt = pair.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return status
}

// TestConnection reads the account, users and pipelines. Failures are
// reported in the result rather than returned.
func (service serviceAmo) TestConnection(ctx context.Context) domainCRM.ConnectionStatus {
	status := domainCRM.ConnectionStatus{TokenState: service.TokenStatus(ctx).State}
	if err := service.ensure(); err != nil {
		status.Error = err.Error()
		return status
	}

	account, err := service.client.GetAccount(ctx)
	if err != nil {
		status.Error = err.Error()
		status.TokenState = service.TokenStatus(ctx).State
		return status
	}
	users, err := service.client.ListUsers(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	pipelines, err := service.client.ListPipelines(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.Success = true
	status.Account = account.Name
	status.UsersCount = len(users)
	status.PipelinesCount = len(pipelines)
	status.TokenState = service.TokenStatus(ctx).State
	return status
}

func (service serviceAmo) ListPipelines(ctx context.Context) ([]domainCRM.Pipeline, error) {
	if err := service.ensure(); err != nil {
		return nil, err
	}
	pipelines, err := service.client.ListPipelines(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	return pipelines, nil
}

func (service serviceAmo) ListUsers(ctx context.Context) ([]domainCRM.User, error) {
	if err := service.ensure(); err != nil {
		return nil, err
	}
	users, err := service.client.ListUsers(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	return users, nil
}

func (service serviceAmo) FindContact(ctx context.Context, phone string) (*domainCRM.Contact, error) {
	if err := service.ensure(); err != nil {
		return nil, err
	}
	normalized := utils.NormalizePhone(phone)
	if normalized == "" {
		return nil, pkgError.ValidationError("phone is required")
	}
	contact, err := service.client.FindContactByPhone(ctx, normalized)
	if err != nil {
		return nil, upstream(err)
	}
	if contact == nil {
		return nil, pkgError.NotFoundError(fmt.Sprintf("no contact for %s", normalized))
	}
	return contact, nil
}

func (service serviceAmo) CreateContact(ctx context.Context, request domainCRM.CreateContactRequest) (*domainCRM.Contact, error) {
	if err := validations.ValidateCreateContact(ctx, request); err != nil {
		return nil, err
	}
	if err := service.ensure(); err != nil {
		return nil, err
	}
	contact, err := service.client.CreateContact(ctx, utils.NormalizePhone(request.Phone), request.Name)
	if err != nil {
		return nil, upstream(err)
	}
	return contact, nil
}

func (service serviceAmo) GetLead(ctx context.Context, leadID int64) (*domainCRM.Lead, error) {
	if leadID <= 0 {
		return nil, pkgError.ValidationError("lead_id must be positive")
	}
	if err := service.ensure(); err != nil {
		return nil, err
	}
	lead, err := service.client.GetLead(ctx, leadID)
	if err != nil {
		return nil, upstream(err)
	}
	if lead == nil {
		return nil, pkgError.NotFoundError(fmt.Sprintf("lead %d not found", leadID))
	}
	return lead, nil
}

func (service serviceAmo) CreateLead(ctx context.Context, request domainCRM.CreateLeadRequest) (*domainCRM.Lead, error) {
	if err := validations.ValidateCreateLead(ctx, request); err != nil {
		return nil, err
	}
	if err := service.ensure(); err != nil {
		return nil, err
	}
	filter := service.Routing(ctx)
	if request.PipelineID > 0 {
		filter.PipelineID = request.PipelineID
	}
	if request.StatusID > 0 {
		filter.StatusID = request.StatusID
	}
	lead, err := service.client.CreateLead(ctx, request.ContactID, utils.NormalizePhone(request.Phone), filter)
	if err != nil {
		return nil, upstream(err)
	}
	return lead, nil
}

func (service serviceAmo) AddNote(ctx context.Context, request domainCRM.AddNoteRequest) (*domainCRM.Note, error) {
	if err := validations.ValidateAddNote(ctx, request); err != nil {
		return nil, err
	}
	if err := service.ensure(); err != nil {
		return nil, err
	}
	note, err := service.client.AddNote(ctx, domainCRM.Note{
		EntityID:   request.EntityID,
		EntityType: request.EntityType,
		Text:       request.Text,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return nil, upstream(err)
	}
	return note, nil
}

func (service serviceAmo) Routing(ctx context.Context) domainCRM.LeadFilter {
	return RoutingFilter(service.routing, service.fallback)(ctx)
}

func (service serviceAmo) SetRouting(ctx context.Context, request domainCRM.RoutingRequest) (domainCRM.LeadFilter, error) {
	if err := validations.ValidateCRMRouting(ctx, request.PipelineID, request.StatusID); err != nil {
		return domainCRM.LeadFilter{}, err
	}
	if service.routing == nil {
		return domainCRM.LeadFilter{}, pkgError.NotConfiguredError("settings storage is not available")
	}
	if err := service.routing.SetCRMRouting(ctx, request.PipelineID, request.StatusID); err != nil {
		return domainCRM.LeadFilter{}, pkgError.InternalServerError(err.Error())
	}
	logrus.Infof("[AMOCRM] routing set to pipeline=%d status=%d", request.PipelineID, request.StatusID)
	return service.Routing(ctx), nil
}

// upstream maps a CRM client failure onto the REST error taxonomy.
func upstream(err error) error {
	if err == nil {
		return nil
	}
	return pkgError.UpstreamError(err.Error())
}
