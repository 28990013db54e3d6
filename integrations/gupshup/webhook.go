package gupshup

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	domainWebhook "github.com/AzielCF/wa-amo-bridge/domains/webhook"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Gupshup-Signature"

const mediaPlaceholder = "[media]"

type envelope struct {
	App       string          `json:"app"`
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// payload covers both the v2 layout (source/payload/sender) and the legacy
// one (mobile/message/eventType/destAddr).
type payload struct {
	ID          string `json:"id"`
	GsID        string `json:"gsId"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Phone       string `json:"phone"`
	Type        string `json:"type"`
	Inner       struct {
		Text    string `json:"text"`
		Caption string `json:"caption"`
		URL     string `json:"url"`
		Name    string `json:"name"`
		Reason  string `json:"reason"`
	} `json:"payload"`
	Sender struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
	} `json:"sender"`

	Mobile  string `json:"mobile"`
	Name    string `json:"name"`
	Message struct {
		Text    string `json:"text"`
		Caption string `json:"caption"`
		Type    string `json:"type"`
		URL     string `json:"url"`
	} `json:"message"`
	EventType  string          `json:"eventType"`
	DestAddr   string          `json:"destAddr"`
	ExternalID string          `json:"externalId"`
	EventTs    json.RawMessage `json:"eventTs"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// ParseWebhook converts a delivery into an Event. Unknown types yield (nil, nil).
func ParseWebhook(body []byte) (*domainWebhook.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("gupshup: invalid webhook body: %w", err)
	}

	var p payload
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("gupshup: invalid webhook payload: %w", err)
		}
	}

	ts := firstTime(p.Timestamp, p.EventTs, env.Timestamp)

	switch env.Type {
	case "message":
		return parseMessage(p, ts), nil
	case "message-event":
		return parseMessageEvent(p, ts), nil
	case "user-event":
		return parseUserEvent(p, ts), nil
	default:
		return nil, nil
	}
}

func parseMessage(p payload, ts time.Time) *domainWebhook.Event {
	phone := firstNonEmpty(p.Source, p.Sender.Phone, p.Mobile)
	msgType := firstNonEmpty(p.Type, p.Message.Type, "text")

	content := firstNonEmpty(p.Inner.Text, p.Inner.Caption, p.Message.Text, p.Message.Caption)
	if content == "" {
		content = mediaPlaceholder
	}

	return &domainWebhook.Event{
		Type:              domainWebhook.EventIncomingMessage,
		ProviderMessageID: p.ID,
		Phone:             utils.NormalizePhone(phone),
		Recipient:         p.Destination,
		SenderName:        firstNonEmpty(p.Sender.Name, p.Name),
		Content:           content,
		MessageType:       msgType,
		MediaURL:          firstNonEmpty(p.Inner.URL, p.Message.URL),
		Timestamp:         ts,
	}
}

func parseMessageEvent(p payload, ts time.Time) *domainWebhook.Event {
	// v2 puts the delivery state in "type" and the provider id in "gsId" or "id".
	status := p.EventType
	if status == "" {
		status = p.Type
	}
	return &domainWebhook.Event{
		Type:              domainWebhook.EventMessageStatus,
		ProviderMessageID: firstNonEmpty(p.GsID, p.ID),
		ExternalID:        p.ExternalID,
		Phone:             utils.NormalizePhone(firstNonEmpty(p.Destination, p.DestAddr)),
		Status:            status,
		Reason:            p.Inner.Reason,
		Timestamp:         ts,
	}
}

func parseUserEvent(p payload, ts time.Time) *domainWebhook.Event {
	return &domainWebhook.Event{
		Type:      domainWebhook.EventUserEvent,
		Phone:     utils.NormalizePhone(firstNonEmpty(p.Phone, p.Mobile, p.Source)),
		UserEvent: firstNonEmpty(p.EventType, p.Type),
		Timestamp: ts,
	}
}

// VerifySignature checks a hex HMAC-SHA256 of body. An empty secret disables the check.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature VerifySignature expects.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func firstTime(raws ...json.RawMessage) time.Time {
	for _, raw := range raws {
		if len(raw) == 0 {
			continue
		}
		var v any
		if json.Unmarshal(raw, &v) != nil {
			continue
		}
		if t := parseTimestamp(v); !t.IsZero() {
			return t
		}
	}
	return time.Now().UTC()
}

// parseTimestamp accepts epoch seconds or milliseconds as a number or string.
func parseTimestamp(v any) time.Time {
	var n int64
	switch x := v.(type) {
	case float64:
		n = int64(x)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			if t, err := time.Parse(time.RFC3339, x); err == nil {
				return t.UTC()
			}
			return time.Time{}
		}
		n = parsed
	default:
		return time.Time{}
	}
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
