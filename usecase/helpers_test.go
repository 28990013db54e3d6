package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AzielCF/wa-amo-bridge/core/config"
	"github.com/AzielCF/wa-amo-bridge/core/database"
	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/chatstorage"
	"github.com/AzielCF/wa-amo-bridge/pkg/msgworker"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) domainChat.IChatStorageRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "usecase.db")}, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := chatstorage.NewGormRepository(db)
	require.NoError(t, repo.InitializeSchema(context.Background()))
	return repo
}

type published struct {
	Channel string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(channel, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: channel, Event: event, Payload: payload})
}

func (p *recordingPublisher) Broadcast(event string, payload any) {
	p.Publish("", event, payload)
}

func (p *recordingPublisher) byEvent(event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type reconcileCall struct {
	Phone     string
	Text      string
	Direction domainCRM.Direction
}

type stubReconciler struct {
	mu     sync.Mutex
	calls  []reconcileCall
	result func(phone string) domainCRM.ReconcileResult
}

func (r *stubReconciler) ReconcileAndNote(_ context.Context, phone, text string, direction domainCRM.Direction) domainCRM.ReconcileResult {
	r.mu.Lock()
	r.calls = append(r.calls, reconcileCall{Phone: phone, Text: text, Direction: direction})
	r.mu.Unlock()
	if r.result != nil {
		return r.result(phone)
	}
	return domainCRM.ReconcileResult{
		Success: true,
		Phone:   phone,
		Contact: &domainCRM.Contact{ID: 11},
		Lead:    &domainCRM.Lead{ID: 22},
		Note:    &domainCRM.Note{ID: 33},
	}
}

func (r *stubReconciler) Calls() []reconcileCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reconcileCall(nil), r.calls...)
}

// inlineDispatcher runs jobs synchronously on the caller's goroutine.
type inlineDispatcher struct {
	reject bool
	jobs   []msgworker.Job
}

func (d *inlineDispatcher) TryDispatch(job msgworker.Job) bool {
	if d.reject {
		return false
	}
	d.jobs = append(d.jobs, job)
	_ = job.Handler(context.Background())
	return true
}

type fakeProvider struct {
	configured bool
	result     domainSend.Result
	status     domainSend.StatusResult
	templates  []domainSend.Template
	listErr    error
	optInErr   error
	optedIn    []string

	texts  []string
	media  []domainSend.Media
	phones []string
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) SendText(_ context.Context, phone, text string) domainSend.Result {
	p.phones = append(p.phones, phone)
	p.texts = append(p.texts, text)
	return p.result
}

func (p *fakeProvider) SendMedia(_ context.Context, phone string, media domainSend.Media) domainSend.Result {
	p.phones = append(p.phones, phone)
	p.media = append(p.media, media)
	return p.result
}

func (p *fakeProvider) SendTemplate(_ context.Context, phone, templateID string, _ []string) domainSend.Result {
	p.phones = append(p.phones, phone)
	p.texts = append(p.texts, templateID)
	return p.result
}

func (p *fakeProvider) GetMessageStatus(context.Context, string) domainSend.StatusResult {
	return p.status
}

func (p *fakeProvider) ListTemplates(context.Context) ([]domainSend.Template, error) {
	return p.templates, p.listErr
}

func (p *fakeProvider) OptInUser(_ context.Context, phone string) error {
	p.optedIn = append(p.optedIn, phone)
	return p.optInErr
}
