package gupshup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.gupshup.io/sm/api/v1"
	defaultTimeout = 30 * time.Second
)

const errNotConfigured = "gupshup is not configured"

type Config struct {
	APIKey       string
	AppName      string
	SourceNumber string
	BaseURL      string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}
}

func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.SourceNumber != ""
}

// SendText sends a plain text session message.
func (c *Client) SendText(ctx context.Context, phone, text string) domainSend.Result {
	return c.sendMessage(ctx, phone, map[string]any{"type": "text", "text": text})
}

// SendMedia sends an image, document, video or audio message by URL.
func (c *Client) SendMedia(ctx context.Context, phone string, media domainSend.Media) domainSend.Result {
	if media.Type == "" {
		media.Type = domainSend.MediaImage
	}
	msg := map[string]any{"type": string(media.Type)}
	switch media.Type {
	case domainSend.MediaImage:
		msg["originalUrl"] = media.URL
		msg["previewUrl"] = media.URL
		if media.PreviewURL != "" {
			msg["previewUrl"] = media.PreviewURL
		}
		msg["caption"] = media.Caption
	case domainSend.MediaDocument:
		msg["type"] = "file"
		msg["url"] = media.URL
		msg["filename"] = media.Filename
		if media.Filename == "" {
			msg["filename"] = "document"
		}
	case domainSend.MediaVideo:
		msg["url"] = media.URL
		msg["caption"] = media.Caption
	case domainSend.MediaAudio:
		msg["url"] = media.URL
	default:
		return domainSend.Result{Success: false, Error: fmt.Sprintf("unsupported media type %q", media.Type)}
	}
	return c.sendMessage(ctx, phone, msg)
}

// SendTemplate sends a pre-approved template; templates are the only way to
// reach a user outside the 24h session window.
func (c *Client) SendTemplate(ctx context.Context, phone, templateID string, params []string) domainSend.Result {
	if !c.Configured() {
		return domainSend.Result{Error: errNotConfigured}
	}
	destination := utils.NormalizePhone(phone)
	if destination == "" {
		return domainSend.Result{Error: "phone is required"}
	}
	if params == nil {
		params = []string{}
	}
	template, _ := json.Marshal(map[string]any{"id": templateID, "params": params})

	form := c.baseForm(destination)
	form.Set("template", string(template))
	return c.postMessage(ctx, "/template/msg", form, destination)
}

func (c *Client) sendMessage(ctx context.Context, phone string, msg map[string]any) domainSend.Result {
	if !c.Configured() {
		return domainSend.Result{Error: errNotConfigured}
	}
	destination := utils.NormalizePhone(phone)
	if destination == "" {
		return domainSend.Result{Error: "phone is required"}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return domainSend.Result{Error: err.Error()}
	}

	form := c.baseForm(destination)
	form.Set("message", string(payload))
	return c.postMessage(ctx, "/msg", form, destination)
}

func (c *Client) baseForm(destination string) url.Values {
	form := url.Values{}
	form.Set("channel", "whatsapp")
	form.Set("source", c.cfg.SourceNumber)
	form.Set("destination", destination)
	form.Set("src.name", c.cfg.AppName)
	return form
}

func (c *Client) postMessage(ctx context.Context, path string, form url.Values, destination string) domainSend.Result {
	var body map[string]any
	if err := c.formRequest(ctx, http.MethodPost, path, form, &body); err != nil {
		logrus.WithError(err).Errorf("[GUPSHUP] send to %s failed", destination)
		return domainSend.Result{Error: err.Error()}
	}

	status := stringField(body, "status")
	if status == "error" {
		msg := stringField(body, "message")
		if msg == "" {
			msg = "provider rejected the message"
		}
		logrus.Errorf("[GUPSHUP] send to %s rejected: %s", destination, msg)
		return domainSend.Result{Error: msg, Data: body}
	}

	messageID := stringField(body, "messageId")
	if messageID == "" {
		messageID = stringField(body, "id")
	}
	logrus.Infof("[GUPSHUP] message %s submitted to %s (%s)", messageID, destination, status)
	return domainSend.Result{Success: true, MessageID: messageID, Status: status, Data: body}
}

// GetMessageStatus reads the last delivery event of an outbound message.
func (c *Client) GetMessageStatus(ctx context.Context, messageID string) domainSend.StatusResult {
	if !c.Configured() {
		return domainSend.StatusResult{Error: errNotConfigured}
	}
	if strings.TrimSpace(messageID) == "" {
		return domainSend.StatusResult{Error: "message id is required"}
	}

	var body map[string]any
	if err := c.formRequest(ctx, http.MethodGet, "/msg/"+url.PathEscape(messageID), nil, &body); err != nil {
		logrus.WithError(err).Warnf("[GUPSHUP] status lookup for %s failed", messageID)
		return domainSend.StatusResult{Error: err.Error()}
	}

	res := domainSend.StatusResult{Success: true, Status: stringField(body, "eventType"), Data: body}
	if res.Status == "" {
		res.Status = stringField(body, "status")
	}
	if ts, ok := body["timestamp"]; ok {
		if t := parseTimestamp(ts); !t.IsZero() {
			res.Timestamp = &t
		}
	}
	return res
}

// ListTemplates returns the templates registered for the app.
func (c *Client) ListTemplates(ctx context.Context) ([]domainSend.Template, error) {
	if !c.Configured() || c.cfg.AppName == "" {
		return nil, errors.New(errNotConfigured)
	}

	var body struct {
		Status    string `json:"status"`
		Templates []struct {
			ID           string `json:"id"`
			ElementName  string `json:"elementName"`
			LanguageCode string `json:"languageCode"`
			Category     string `json:"category"`
			Status       string `json:"status"`
			Data         string `json:"data"`
		} `json:"templates"`
	}
	if err := c.formRequest(ctx, http.MethodGet, "/template/list/"+url.PathEscape(c.cfg.AppName), nil, &body); err != nil {
		return nil, err
	}

	templates := make([]domainSend.Template, 0, len(body.Templates))
	for _, t := range body.Templates {
		templates = append(templates, domainSend.Template{
			ID:           t.ID,
			ElementName:  t.ElementName,
			LanguageCode: t.LanguageCode,
			Category:     t.Category,
			Status:       t.Status,
			Data:         t.Data,
		})
	}
	return templates, nil
}

// OptInUser registers consent for a phone on the app.
func (c *Client) OptInUser(ctx context.Context, phone string) error {
	if !c.Configured() || c.cfg.AppName == "" {
		return errors.New(errNotConfigured)
	}
	form := url.Values{}
	form.Set("user", utils.NormalizePhone(phone))
	return c.formRequest(ctx, http.MethodPost, "/app/opt/in/"+url.PathEscape(c.cfg.AppName), form, nil)
}

func (c *Client) formRequest(ctx context.Context, method, path string, form url.Values, dest any) error {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providerError(resp.StatusCode, raw)
	}
	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("gupshup: decode response: %w", err)
	}
	return nil
}

func providerError(status int, raw []byte) error {
	var body struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return errors.New(body.Message)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Errorf("gupshup: status %d: %s", status, text)
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
