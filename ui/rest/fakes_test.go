package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type fakeSend struct {
	response domainSend.Response
	err      error

	lastText     domainSend.MessageRequest
	lastMedia    domainSend.MediaRequest
	lastTemplate domainSend.TemplateRequest
	lastCRM      domainSend.CRMSendRequest
	lastOptIn    domainSend.OptInRequest
}

func (f *fakeSend) OptIn(_ context.Context, request domainSend.OptInRequest) (string, error) {
	f.lastOptIn = request
	return request.Phone, f.err
}

func (f *fakeSend) SendText(_ context.Context, request domainSend.MessageRequest) (domainSend.Response, error) {
	f.lastText = request
	return f.response, f.err
}

func (f *fakeSend) SendMedia(_ context.Context, request domainSend.MediaRequest) (domainSend.Response, error) {
	f.lastMedia = request
	return f.response, f.err
}

func (f *fakeSend) SendTemplate(_ context.Context, request domainSend.TemplateRequest) (domainSend.Response, error) {
	f.lastTemplate = request
	return f.response, f.err
}

func (f *fakeSend) SendFromCRM(_ context.Context, request domainSend.CRMSendRequest) (domainSend.Response, error) {
	f.lastCRM = request
	return f.response, f.err
}

func (f *fakeSend) MessageStatus(context.Context, string) (domainSend.StatusResult, error) {
	return domainSend.StatusResult{Success: true, Status: "delivered"}, f.err
}

func (f *fakeSend) Templates(context.Context) ([]domainSend.Template, error) {
	return []domainSend.Template{{ID: "t1"}}, f.err
}

type fakeWebhook struct {
	err       error
	body      string
	signature string
	form      url.Values
	panics    bool
}

func (f *fakeWebhook) HandleGupshup(_ context.Context, body []byte, signature string) error {
	f.body = string(body)
	f.signature = signature
	if f.panics {
		panic("nil chat")
	}
	return f.err
}

func (f *fakeWebhook) HandleAmo(_ context.Context, form url.Values) error {
	f.form = form
	if f.panics {
		panic("nil chat")
	}
	return f.err
}

type fakeChat struct {
	domainChat.IChatUsecase
	err      error
	page     domainChat.Page
	readChat string
	update   domainChat.UpdateContactRequest
	create   domainChat.CreateContactRequest
}

func (f *fakeChat) CreateContact(_ context.Context, request domainChat.CreateContactRequest) (domainChat.Contact, error) {
	f.create = request
	return domainChat.Contact{Phone: request.Phone, Name: request.Name, ChatID: "chat_" + request.Phone, AmoContactID: 77}, f.err
}

func (f *fakeChat) ListChats(_ context.Context, page domainChat.Page) ([]domainChat.Chat, error) {
	f.page = page
	return []domainChat.Chat{{ID: "chat_1"}}, f.err
}

func (f *fakeChat) MarkRead(_ context.Context, chatID string) error {
	f.readChat = chatID
	return f.err
}

func (f *fakeChat) GetContact(context.Context, string) (domainChat.Contact, error) {
	return domainChat.Contact{}, f.err
}

func (f *fakeChat) UpdateContact(_ context.Context, request domainChat.UpdateContactRequest) (domainChat.Contact, error) {
	f.update = request
	return domainChat.Contact{Phone: request.Phone, Name: request.Name}, f.err
}

type fakeAmo struct {
	domainCRM.IAmoUsecase
	err     error
	filter  domainCRM.LeadFilter
	code    string
	state   string
	note    domainCRM.AddNoteRequest
	lead    domainCRM.CreateLeadRequest
	routing domainCRM.RoutingRequest
	connOK  bool
}

func (f *fakeAmo) AuthURL(context.Context) (domainCRM.AuthURLResponse, error) {
	return domainCRM.AuthURLResponse{URL: "https://www.amocrm.ru/oauth?state=s", State: "s"}, f.err
}

func (f *fakeAmo) HandleCallback(_ context.Context, code, state string) (domainCRM.TokenPair, error) {
	f.code = code
	f.state = state
	return domainCRM.TokenPair{}, f.err
}

func (f *fakeAmo) TestConnection(context.Context) domainCRM.ConnectionStatus {
	return domainCRM.ConnectionStatus{Success: f.connOK}
}

func (f *fakeAmo) CreateLead(_ context.Context, request domainCRM.CreateLeadRequest) (*domainCRM.Lead, error) {
	f.lead = request
	return &domainCRM.Lead{ID: 1}, f.err
}

func (f *fakeAmo) AddNote(_ context.Context, request domainCRM.AddNoteRequest) (*domainCRM.Note, error) {
	f.note = request
	return &domainCRM.Note{ID: 2}, f.err
}

func (f *fakeAmo) Routing(context.Context) domainCRM.LeadFilter { return f.filter }

func (f *fakeAmo) SetRouting(_ context.Context, request domainCRM.RoutingRequest) (domainCRM.LeadFilter, error) {
	f.routing = request
	f.filter = domainCRM.LeadFilter{PipelineID: request.PipelineID, StatusID: request.StatusID}
	return f.filter, f.err
}

func do(t *testing.T, app *fiber.App, method, target, contentType, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, string(data)
}
