package usecase

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainRealtime "github.com/AzielCF/wa-amo-bridge/domains/realtime"
	domainWebhook "github.com/AzielCF/wa-amo-bridge/domains/webhook"
	"github.com/AzielCF/wa-amo-bridge/integrations/gupshup"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/syncmonitor"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/sirupsen/logrus"
)

type serviceWebhook struct {
	repo      domainChat.IChatStorageRepository
	publisher domainRealtime.IPublisher
	sync      *CRMSync
	secret    string
}

// NewWebhookService builds the ingest path. An empty secret disables the
// signature check.
func NewWebhookService(repo domainChat.IChatStorageRepository, publisher domainRealtime.IPublisher, sync *CRMSync, secret string) domainWebhook.IWebhookUsecase {
	if publisher == nil {
		publisher = domainRealtime.Nop{}
	}
	return &serviceWebhook{
		repo:      repo,
		publisher: publisher,
		sync:      sync,
		secret:    secret,
	}
}

func (service *serviceWebhook) HandleGupshup(ctx context.Context, body []byte, signature string) error {
	if !gupshup.VerifySignature(service.secret, body, signature) {
		syncmonitor.Record(syncmonitor.Event{Stage: syncmonitor.StageWebhook, Status: syncmonitor.StatusError, Error: "invalid signature"})
		return pkgError.ValidationError("invalid webhook signature")
	}

	event, err := gupshup.ParseWebhook(body)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	if event == nil {
		logrus.Debug("[WEBHOOK] ignoring unsupported gupshup event")
		return nil
	}

	switch event.Type {
	case domainWebhook.EventIncomingMessage:
		return service.handleIncoming(ctx, *event)
	case domainWebhook.EventMessageStatus:
		return service.handleStatus(ctx, *event)
	case domainWebhook.EventUserEvent:
		service.handleUserEvent(*event)
	}
	return nil
}

func (service *serviceWebhook) handleIncoming(ctx context.Context, event domainWebhook.Event) error {
	if event.Phone == "" {
		return pkgError.ValidationError("incoming message without sender")
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if _, err := service.repo.UpsertContact(ctx, domainChat.Contact{
		Phone:         event.Phone,
		Name:          event.SenderName,
		LastMessageAt: &ts,
	}); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	chat, err := service.repo.EnsureChat(ctx, event.Phone, event.SenderName)
	if err != nil {
		return fmt.Errorf("ensure chat: %w", err)
	}

	message := &domainChat.Message{
		ChatID:            chat.ID,
		Direction:         domainChat.DirectionIncoming,
		Sender:            event.Phone,
		Recipient:         event.Recipient,
		Content:           event.Content,
		MessageType:       event.MessageType,
		MediaURL:          event.MediaURL,
		Status:            domainChat.StatusReceived,
		ProviderMessageID: event.ProviderMessageID,
		Timestamp:         ts,
	}
	if err := service.repo.CreateMessage(ctx, message); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"chat_id":     chat.ID,
		"message_id":  message.ID,
		"provider_id": message.ProviderMessageID,
		"type":        message.MessageType,
	}).Info("[WEBHOOK] incoming message stored")

	service.publisher.Publish(chat.ID, domainRealtime.EventNewMessage, message)

	unread := chat.UnreadCount + 1
	if fresh, err := service.repo.GetChat(ctx, chat.ID); err == nil {
		unread = fresh.UnreadCount
	}
	service.publisher.Broadcast(domainRealtime.EventChatUpdated, map[string]any{
		"chat_id":      chat.ID,
		"contact_name": chat.ContactName,
		"last_message": message,
		"unread_count": unread,
	})

	if service.sync.Enabled() {
		if !service.sync.Enqueue(event.Phone, event.Content, domainCRM.DirectionIncoming, message.ID) {
			logrus.Warnf("[WEBHOOK] CRM sync not scheduled for %s", chat.ID)
		}
	}
	return nil
}

func (service *serviceWebhook) handleStatus(ctx context.Context, event domainWebhook.Event) error {
	message, err := service.repo.UpdateMessageStatusByProviderID(ctx, event.ProviderMessageID, event.Status)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if message == nil && event.ExternalID != "" {
		message, err = service.repo.UpdateMessageStatusByProviderID(ctx, event.ExternalID, event.Status)
		if err != nil {
			return fmt.Errorf("update message status: %w", err)
		}
	}

	chatID := ""
	payload := map[string]any{
		"provider_message_id": event.ProviderMessageID,
		"status":              event.Status,
		"timestamp":           event.Timestamp,
	}
	if event.Reason != "" {
		payload["reason"] = event.Reason
	}
	if message != nil {
		chatID = message.ChatID
		payload["message_id"] = message.ID
		payload["status"] = message.Status
	} else if event.Phone != "" {
		chatID = utils.ChatIDForPhone(event.Phone)
		logrus.Debugf("[WEBHOOK] status %s for unknown message %s", event.Status, event.ProviderMessageID)
	}
	if chatID == "" {
		return nil
	}
	service.publisher.Publish(chatID, domainRealtime.EventMessageStatusUpdated, payload)
	return nil
}

func (service *serviceWebhook) handleUserEvent(event domainWebhook.Event) {
	if event.Phone == "" {
		return
	}
	logrus.Infof("[WEBHOOK] user event %s from %s", event.UserEvent, event.Phone)
	service.publisher.Publish(utils.ChatIDForPhone(event.Phone), domainRealtime.EventUserEvent, map[string]any{
		"phone":      event.Phone,
		"event_type": event.UserEvent,
		"timestamp":  event.Timestamp,
	})
}

// HandleAmo fans lead changes out to every chat that references the lead.
func (service *serviceWebhook) HandleAmo(ctx context.Context, form url.Values) error {
	changes := ParseAmoLeadChanges(form)
	if len(changes) == 0 {
		logrus.Debug("[WEBHOOK] amo delivery without lead changes")
		return nil
	}

	for _, change := range changes {
		chatIDs, err := service.repo.ChatIDsForLead(ctx, change.LeadID)
		if err != nil {
			return fmt.Errorf("chats for lead %d: %w", change.LeadID, err)
		}
		logrus.Infof("[WEBHOOK] amo lead %d %s, %d chat(s)", change.LeadID, change.Action, len(chatIDs))
		for _, chatID := range chatIDs {
			service.publisher.Publish(chatID, domainRealtime.EventAmoLeadUpdated, change)
		}
	}
	return nil
}

var amoLeadKey = regexp.MustCompile(`^leads\[(status|update|add|delete)\]\[(\d+)\]\[(id|status_id|pipeline_id)\]$`)

// ParseAmoLeadChanges reads the bracketed form AmoCRM posts, e.g.
// leads[status][0][id]=123. Entries without a lead id are dropped.
func ParseAmoLeadChanges(form url.Values) []domainWebhook.AmoLeadChange {
	type key struct {
		action string
		index  int
	}
	byKey := map[key]*domainWebhook.AmoLeadChange{}

	for name, values := range form {
		m := amoLeadKey.FindStringSubmatch(name)
		if m == nil || len(values) == 0 {
			continue
		}
		idx, _ := strconv.Atoi(m[2])
		k := key{action: m[1], index: idx}
		change, ok := byKey[k]
		if !ok {
			change = &domainWebhook.AmoLeadChange{Action: m[1]}
			byKey[k] = change
		}
		v, err := strconv.ParseInt(values[0], 10, 64)
		if err != nil {
			continue
		}
		switch m[3] {
		case "id":
			change.LeadID = v
		case "status_id":
			change.StatusID = v
		case "pipeline_id":
			change.PipelineID = v
		}
	}

	keys := make([]key, 0, len(byKey))
	for k, change := range byKey {
		if change.LeadID > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].action != keys[j].action {
			return keys[i].action < keys[j].action
		}
		return keys[i].index < keys[j].index
	})

	out := make([]domainWebhook.AmoLeadChange, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}
