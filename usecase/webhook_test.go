package usecase

import (
	"context"
	"net/url"
	"testing"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainRealtime "github.com/AzielCF/wa-amo-bridge/domains/realtime"
	domainWebhook "github.com/AzielCF/wa-amo-bridge/domains/webhook"
	"github.com/AzielCF/wa-amo-bridge/integrations/gupshup"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const incomingBody = `{"type":"message","payload":{"id":"gs-1","source":"79001234567","type":"text","payload":{"text":"Hi"},"sender":{"phone":"79001234567","name":"Ann"}},"timestamp":1700000000000}`

func newWebhookFixture(t *testing.T, reconciler *stubReconciler) (domainWebhook.IWebhookUsecase, domainChat.IChatStorageRepository, *recordingPublisher) {
	t.Helper()
	repo := newRepo(t)
	pub := &recordingPublisher{}
	var sync *CRMSync
	if reconciler != nil {
		sync = NewCRMSync(reconciler, repo, pub, &inlineDispatcher{})
	}
	return NewWebhookService(repo, pub, sync, ""), repo, pub
}

func TestHandleGupshup_IncomingMessageStoredPublishedAndSynced(t *testing.T) {
	reconciler := &stubReconciler{}
	svc, repo, pub := newWebhookFixture(t, reconciler)
	ctx := context.Background()

	require.NoError(t, svc.HandleGupshup(ctx, []byte(incomingBody), ""))

	messages, err := repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Hi", messages[0].Content)
	assert.Equal(t, domainChat.DirectionIncoming, messages[0].Direction)
	assert.Equal(t, "gs-1", messages[0].ProviderMessageID)
	assert.Equal(t, int64(22), messages[0].AmoLeadID)

	contact, err := repo.GetContactByPhone(ctx, "79001234567")
	require.NoError(t, err)
	assert.Equal(t, "Ann", contact.Name)
	assert.Equal(t, int64(11), contact.AmoContactID)
	assert.Equal(t, int64(22), contact.AmoLeadID)

	chat, err := repo.GetChat(ctx, "chat_79001234567")
	require.NoError(t, err)
	assert.Equal(t, 1, chat.UnreadCount)

	calls := reconciler.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, reconcileCall{Phone: "79001234567", Text: "Hi", Direction: domainCRM.DirectionIncoming}, calls[0])

	newMessages := pub.byEvent(domainRealtime.EventNewMessage)
	require.Len(t, newMessages, 1)
	assert.Equal(t, "chat_79001234567", newMessages[0].Channel)

	updates := pub.byEvent(domainRealtime.EventChatUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, "", updates[0].Channel)

	synced := pub.byEvent(domainRealtime.EventCRMSynced)
	require.Len(t, synced, 1)
	assert.Equal(t, true, synced[0].Payload.(map[string]any)["success"])
}

func TestHandleGupshup_ReconcileFailureStillStoresMessage(t *testing.T) {
	reconciler := &stubReconciler{result: func(phone string) domainCRM.ReconcileResult {
		return domainCRM.ReconcileResult{Phone: phone, Error: "amocrm: status 500"}
	}}
	svc, repo, pub := newWebhookFixture(t, reconciler)
	ctx := context.Background()

	require.NoError(t, svc.HandleGupshup(ctx, []byte(incomingBody), ""))

	messages, err := repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Zero(t, messages[0].AmoLeadID)

	synced := pub.byEvent(domainRealtime.EventCRMSynced)
	require.Len(t, synced, 1)
	payload := synced[0].Payload.(map[string]any)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "amocrm: status 500", payload["error"])
}

func TestHandleGupshup_WithoutCRMOnlyStores(t *testing.T) {
	svc, repo, pub := newWebhookFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.HandleGupshup(ctx, []byte(incomingBody), ""))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Messages)
	assert.Empty(t, pub.byEvent(domainRealtime.EventCRMSynced))
}

func TestHandleGupshup_StatusUpdatesStoredMessage(t *testing.T) {
	svc, repo, pub := newWebhookFixture(t, nil)
	ctx := context.Background()

	_, err := repo.EnsureChat(ctx, "79001234567", "")
	require.NoError(t, err)
	msg := &domainChat.Message{ChatID: "chat_79001234567", Direction: domainChat.DirectionOutgoing, Content: "yo", ProviderMessageID: "gs-out", Status: domainChat.StatusSent}
	require.NoError(t, repo.CreateMessage(ctx, msg))

	body := `{"type":"message-event","payload":{"gsId":"gs-out","eventType":"delivered","destAddr":"79001234567"}}`
	require.NoError(t, svc.HandleGupshup(ctx, []byte(body), ""))

	messages, err := repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domainChat.StatusDelivered, messages[0].Status)

	events := pub.byEvent(domainRealtime.EventMessageStatusUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, "chat_79001234567", events[0].Channel)
	assert.Equal(t, msg.ID, events[0].Payload.(map[string]any)["message_id"])
}

func TestHandleGupshup_UserEventPublishedToChat(t *testing.T) {
	svc, _, pub := newWebhookFixture(t, nil)

	body := `{"type":"user-event","payload":{"phone":"79001234567","type":"opted-in"}}`
	require.NoError(t, svc.HandleGupshup(context.Background(), []byte(body), ""))

	events := pub.byEvent(domainRealtime.EventUserEvent)
	require.Len(t, events, 1)
	assert.Equal(t, "chat_79001234567", events[0].Channel)
	assert.Equal(t, "opted-in", events[0].Payload.(map[string]any)["event_type"])
}

func TestHandleGupshup_UnknownTypeIgnored(t *testing.T) {
	svc, _, pub := newWebhookFixture(t, nil)
	require.NoError(t, svc.HandleGupshup(context.Background(), []byte(`{"type":"billing-event","payload":{}}`), ""))
	assert.Empty(t, pub.events)
}

func TestHandleGupshup_InvalidBody(t *testing.T) {
	svc, _, _ := newWebhookFixture(t, nil)
	err := svc.HandleGupshup(context.Background(), []byte(`not json`), "")
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestHandleGupshup_Signature(t *testing.T) {
	repo := newRepo(t)
	svc := NewWebhookService(repo, nil, nil, "s3cret")
	ctx := context.Background()

	err := svc.HandleGupshup(ctx, []byte(incomingBody), "deadbeef")
	require.Error(t, err)
	stats, _ := repo.Stats(ctx)
	assert.Zero(t, stats.Messages)

	require.NoError(t, svc.HandleGupshup(ctx, []byte(incomingBody), gupshup.Sign("s3cret", []byte(incomingBody))))
	stats, _ = repo.Stats(ctx)
	assert.Equal(t, int64(1), stats.Messages)
}

func TestHandleAmo_PublishesToLinkedChats(t *testing.T) {
	svc, repo, pub := newWebhookFixture(t, nil)
	ctx := context.Background()

	_, err := repo.EnsureChat(ctx, "79001234567", "")
	require.NoError(t, err)
	msg := &domainChat.Message{ChatID: "chat_79001234567", Direction: domainChat.DirectionIncoming, Content: "Hi"}
	require.NoError(t, repo.CreateMessage(ctx, msg))
	require.NoError(t, repo.SetMessageAmoLead(ctx, msg.ID, 555))

	form := url.Values{}
	form.Set("leads[status][0][id]", "555")
	form.Set("leads[status][0][status_id]", "142")
	form.Set("leads[status][0][pipeline_id]", "7")
	form.Set("leads[status][1][id]", "999")
	require.NoError(t, svc.HandleAmo(ctx, form))

	events := pub.byEvent(domainRealtime.EventAmoLeadUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, "chat_79001234567", events[0].Channel)
	assert.Equal(t, domainWebhook.AmoLeadChange{LeadID: 555, StatusID: 142, PipelineID: 7, Action: "status"}, events[0].Payload)
}

func TestParseAmoLeadChanges(t *testing.T) {
	form := url.Values{}
	form.Set("leads[update][0][id]", "3")
	form.Set("leads[add][0][id]", "1")
	form.Set("leads[add][1][id]", "2")
	form.Set("leads[add][2][status_id]", "9")
	form.Set("contacts[update][0][id]", "4")
	form.Set("leads[status][0][id]", "oops")

	changes := ParseAmoLeadChanges(form)
	require.Len(t, changes, 3)
	assert.Equal(t, int64(1), changes[0].LeadID)
	assert.Equal(t, "add", changes[0].Action)
	assert.Equal(t, int64(2), changes[1].LeadID)
	assert.Equal(t, int64(3), changes[2].LeadID)
	assert.Equal(t, "update", changes[2].Action)
}
