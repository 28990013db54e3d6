package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainRealtime "github.com/AzielCF/wa-amo-bridge/domains/realtime"
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/AzielCF/wa-amo-bridge/validations"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	_ "golang.org/x/image/webp"
)

const previewWidth = 320

// NoteWriter appends notes to CRM entities.
type NoteWriter interface {
	AddNote(ctx context.Context, note domainCRM.Note) (*domainCRM.Note, error)
}

// MediaOptions controls where uploads land and how they are addressed.
type MediaOptions struct {
	Dir        string // filesystem directory served under /statics/media
	PublicBase string // absolute URL prefix of Dir, e.g. https://host/statics/media
}

type serviceSend struct {
	provider  domainSend.IProvider
	repo      domainChat.IChatStorageRepository
	publisher domainRealtime.IPublisher
	sync      *CRMSync
	notes     NoteWriter
	media     MediaOptions
}

func NewSendService(provider domainSend.IProvider, repo domainChat.IChatStorageRepository, publisher domainRealtime.IPublisher, sync *CRMSync, notes NoteWriter, media MediaOptions) domainSend.ISendUsecase {
	if publisher == nil {
		publisher = domainRealtime.Nop{}
	}
	return &serviceSend{
		provider:  provider,
		repo:      repo,
		publisher: publisher,
		sync:      sync,
		notes:     notes,
		media:     media,
	}
}

func (service serviceSend) ensureProvider() error {
	if service.provider == nil || !service.provider.Configured() {
		return pkgError.NotConfiguredError("gupshup is not configured")
	}
	return nil
}

func (service serviceSend) SendText(ctx context.Context, request domainSend.MessageRequest) (domainSend.Response, error) {
	if err := validations.ValidateSendMessage(ctx, request); err != nil {
		return domainSend.Response{}, err
	}
	if err := service.ensureProvider(); err != nil {
		return domainSend.Response{}, err
	}

	phone := utils.NormalizePhone(request.Phone)
	result := service.provider.SendText(ctx, phone, request.Message)
	response := domainSend.Response{Result: result, Phone: phone, ChatID: utils.ChatIDForPhone(phone)}
	if !result.Success {
		logrus.WithField("phone", phone).Warnf("[SEND] text rejected by provider: %s", result.Error)
		return response, nil
	}

	message := service.recordOutgoing(ctx, phone, request.Message, "text", "", result)
	if message != nil {
		response.LocalID = message.ID
		service.sync.Enqueue(phone, request.Message, domainCRM.DirectionOutgoing, message.ID)
	}
	return response, nil
}

func (service serviceSend) SendMedia(ctx context.Context, request domainSend.MediaRequest) (domainSend.Response, error) {
	if request.MediaType == "" {
		request.MediaType = domainSend.MediaImage
	}
	if err := validations.ValidateSendMedia(ctx, request); err != nil {
		return domainSend.Response{}, err
	}
	if err := service.ensureProvider(); err != nil {
		return domainSend.Response{}, err
	}

	media := domainSend.Media{
		Type:    request.MediaType,
		URL:     request.MediaURL,
		Caption: request.Caption,
	}
	if request.File != nil {
		stored, err := service.storeUpload(request)
		if err != nil {
			return domainSend.Response{}, err
		}
		media.URL = stored.URL
		media.PreviewURL = stored.PreviewURL
		media.Filename = request.File.Filename
	}

	phone := utils.NormalizePhone(request.Phone)
	result := service.provider.SendMedia(ctx, phone, media)
	response := domainSend.Response{
		Result:     result,
		Phone:      phone,
		ChatID:     utils.ChatIDForPhone(phone),
		MediaURL:   media.URL,
		PreviewURL: media.PreviewURL,
	}
	if !result.Success {
		logrus.WithField("phone", phone).Warnf("[SEND] %s rejected by provider: %s", media.Type, result.Error)
		return response, nil
	}

	content := mediaContent(media)
	message := service.recordOutgoing(ctx, phone, content, string(media.Type), media.URL, result)
	if message != nil {
		response.LocalID = message.ID
		service.sync.Enqueue(phone, content, domainCRM.DirectionOutgoing, message.ID)
	}
	return response, nil
}

func (service serviceSend) SendTemplate(ctx context.Context, request domainSend.TemplateRequest) (domainSend.Response, error) {
	if err := validations.ValidateSendTemplate(ctx, request); err != nil {
		return domainSend.Response{}, err
	}
	if err := service.ensureProvider(); err != nil {
		return domainSend.Response{}, err
	}

	phone := utils.NormalizePhone(request.Phone)
	result := service.provider.SendTemplate(ctx, phone, request.TemplateID, request.Params)
	response := domainSend.Response{Result: result, Phone: phone, ChatID: utils.ChatIDForPhone(phone)}
	if !result.Success {
		logrus.WithField("phone", phone).Warnf("[SEND] template %s rejected by provider: %s", request.TemplateID, result.Error)
		return response, nil
	}

	content := fmt.Sprintf("[TEMPLATE: %s] %s", request.TemplateID, strings.Join(request.Params, ", "))
	message := service.recordOutgoing(ctx, phone, strings.TrimSpace(content), "template", "", result)
	if message != nil {
		response.LocalID = message.ID
		service.sync.Enqueue(phone, content, domainCRM.DirectionOutgoing, message.ID)
	}
	return response, nil
}

// SendFromCRM delivers a message typed by a CRM user and confirms it with a
// note on the lead, or the contact when no lead is given. The note is
// best-effort: its outcome is reported in CRMNoteStatus.
func (service serviceSend) SendFromCRM(ctx context.Context, request domainSend.CRMSendRequest) (domainSend.Response, error) {
	if err := validations.ValidateCRMSend(ctx, request); err != nil {
		return domainSend.Response{}, err
	}
	if err := service.ensureProvider(); err != nil {
		return domainSend.Response{}, err
	}

	phone := utils.NormalizePhone(request.Phone)
	result := service.provider.SendText(ctx, phone, request.Message)
	response := domainSend.Response{Result: result, Phone: phone, ChatID: utils.ChatIDForPhone(phone)}
	if !result.Success {
		return response, nil
	}

	message := service.recordOutgoing(ctx, phone, request.Message, "text", "", result)
	if message != nil {
		response.LocalID = message.ID
		if request.LeadID > 0 {
			if err := service.repo.SetMessageAmoLead(ctx, message.ID, request.LeadID); err != nil {
				logrus.WithError(err).Warn("[SEND] failed to link message to lead")
			}
		}
	}

	response.CRMNoteStatus = service.confirmInCRM(ctx, request)
	return response, nil
}

func (service serviceSend) confirmInCRM(ctx context.Context, request domainSend.CRMSendRequest) string {
	if service.notes == nil {
		return "skipped"
	}
	note := domainCRM.Note{
		EntityID:   request.LeadID,
		EntityType: domainCRM.EntityLead,
		Text:       "✅ WhatsApp sent: " + request.Message,
		Direction:  domainCRM.DirectionOutgoing,
		Timestamp:  time.Now().UTC(),
	}
	if request.LeadID <= 0 {
		note.EntityID = request.ContactID
		note.EntityType = domainCRM.EntityContact
	}
	if note.EntityID <= 0 {
		return "skipped"
	}
	if _, err := service.notes.AddNote(ctx, note); err != nil {
		logrus.WithError(err).Warnf("[SEND] failed to add CRM note to %s %d", note.EntityType, note.EntityID)
		return "failed"
	}
	return "added"
}

// MessageStatus asks the provider for a delivery state and mirrors it onto
// the stored message.
func (service serviceSend) MessageStatus(ctx context.Context, messageID string) (domainSend.StatusResult, error) {
	if strings.TrimSpace(messageID) == "" {
		return domainSend.StatusResult{}, pkgError.ValidationError("message_id is required")
	}
	if err := service.ensureProvider(); err != nil {
		return domainSend.StatusResult{}, err
	}

	result := service.provider.GetMessageStatus(ctx, messageID)
	if result.Success && result.Status != "" && service.repo != nil {
		message, err := service.repo.UpdateMessageStatusByProviderID(ctx, messageID, result.Status)
		if err != nil {
			logrus.WithError(err).Warn("[SEND] failed to store polled status")
		} else if message != nil {
			service.publisher.Publish(message.ChatID, domainRealtime.EventMessageStatusUpdated, map[string]any{
				"message_id":          message.ID,
				"provider_message_id": messageID,
				"status":              message.Status,
				"timestamp":           result.Timestamp,
			})
		}
	}
	return result, nil
}

func (service serviceSend) Templates(ctx context.Context) ([]domainSend.Template, error) {
	if err := service.ensureProvider(); err != nil {
		return nil, err
	}
	templates, err := service.provider.ListTemplates(ctx)
	if err != nil {
		return nil, pkgError.UpstreamError(err.Error())
	}
	return templates, nil
}

// OptIn registers the user's consent with the provider, which template
// messages require. It returns the normalized phone.
func (service serviceSend) OptIn(ctx context.Context, request domainSend.OptInRequest) (string, error) {
	if err := validations.ValidateOptIn(ctx, request); err != nil {
		return "", err
	}
	if err := service.ensureProvider(); err != nil {
		return "", err
	}
	phone := utils.NormalizePhone(request.Phone)
	if err := service.provider.OptInUser(ctx, phone); err != nil {
		logrus.WithError(err).Warnf("[SEND] opt-in for %s failed", phone)
		return "", pkgError.UpstreamError(err.Error())
	}
	return phone, nil
}

// recordOutgoing stores a delivered message and notifies subscribers. Storage
// failures are logged: the provider already accepted the message.
func (service serviceSend) recordOutgoing(ctx context.Context, phone, content, messageType, mediaURL string, result domainSend.Result) *domainChat.Message {
	if service.repo == nil {
		return nil
	}
	now := time.Now().UTC()
	if _, err := service.repo.UpsertContact(ctx, domainChat.Contact{Phone: phone, LastMessageAt: &now}); err != nil {
		logrus.WithError(err).Errorf("[SEND] failed to upsert contact %s", phone)
		return nil
	}
	chat, err := service.repo.EnsureChat(ctx, phone, "")
	if err != nil {
		logrus.WithError(err).Errorf("[SEND] failed to ensure chat for %s", phone)
		return nil
	}

	status := result.Status
	if status == "" || status == "submitted" {
		status = domainChat.StatusSent
	}
	message := &domainChat.Message{
		ChatID:            chat.ID,
		Direction:         domainChat.DirectionOutgoing,
		Sender:            "system",
		Recipient:         phone,
		Content:           content,
		MessageType:       messageType,
		MediaURL:          mediaURL,
		Status:            status,
		ProviderMessageID: result.MessageID,
		Timestamp:         now,
	}
	if err := service.repo.CreateMessage(ctx, message); err != nil {
		logrus.WithError(err).Errorf("[SEND] failed to store outgoing message for %s", phone)
		return nil
	}

	service.publisher.Publish(chat.ID, domainRealtime.EventNewMessage, message)
	service.publisher.Broadcast(domainRealtime.EventChatUpdated, map[string]any{
		"chat_id":      chat.ID,
		"contact_name": chat.ContactName,
		"last_message": message,
		"unread_count": chat.UnreadCount,
	})
	return message
}

type storedUpload struct {
	URL        string
	PreviewURL string
}

func (service serviceSend) storeUpload(request domainSend.MediaRequest) (storedUpload, error) {
	if service.media.Dir == "" || service.media.PublicBase == "" {
		return storedUpload{}, pkgError.NotConfiguredError("media uploads are not configured")
	}
	if err := os.MkdirAll(service.media.Dir, 0o755); err != nil {
		return storedUpload{}, pkgError.InternalServerError(fmt.Sprintf("failed to create media dir: %v", err))
	}

	name := uuid.NewString() + "-" + sanitizeFilename(request.File.Filename)
	path := filepath.Join(service.media.Dir, name)
	if err := fasthttp.SaveMultipartFile(request.File, path); err != nil {
		return storedUpload{}, pkgError.InternalServerError(fmt.Sprintf("failed to store upload: %v", err))
	}

	base := strings.TrimRight(service.media.PublicBase, "/")
	out := storedUpload{URL: base + "/" + name}
	if request.MediaType != domainSend.MediaImage {
		return out, nil
	}

	preview, err := makePreview(path)
	if err != nil {
		logrus.WithError(err).Warn("[SEND] preview generation failed, using original")
		out.PreviewURL = out.URL
		return out, nil
	}
	out.PreviewURL = base + "/" + filepath.Base(preview)
	return out, nil
}

// makePreview writes a 320px wide JPEG next to the original.
func makePreview(path string) (string, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return "", err
	}
	if src.Bounds().Dx() > previewWidth {
		src = imaging.Resize(src, previewWidth, 0, imaging.Lanczos)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	previewPath := filepath.Join(filepath.Dir(path), "preview-"+base+".jpg")
	if err := imaging.Save(src, previewPath, imaging.JPEGQuality(80)); err != nil {
		return "", err
	}
	return previewPath, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == "_" {
		return "file"
	}
	return name
}

func mediaContent(media domainSend.Media) string {
	if media.Caption != "" {
		return media.Caption
	}
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(media.Type)), media.URL)
}
