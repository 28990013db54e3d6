package realtime

// Events emitted to UI subscribers.
const (
	EventNewMessage           = "new_message"
	EventMessageStatusUpdated = "message_status_updated"
	EventChatUpdated          = "chat_updated"
	EventCRMSynced            = "crm_synced"
	EventUserEvent            = "user_event"
	EventAmoLeadUpdated       = "amo_lead_updated"
)

// IPublisher fans events out to subscribers. Publish targets one channel
// (a chat id); Broadcast reaches everyone. Both are fire-and-forget.
type IPublisher interface {
	Publish(channel, event string, payload any)
	Broadcast(event string, payload any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, string, any) {}
func (Nop) Broadcast(string, any)       {}
