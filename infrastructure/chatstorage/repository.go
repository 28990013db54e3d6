package chatstorage

import (
	"context"
	"errors"
	"strings"
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/AzielCF/wa-amo-bridge/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// statusRank orders delivery states so late or duplicated provider events
// cannot move a message backwards.
var statusRank = map[string]int{
	domainChat.StatusPending:   1,
	domainChat.StatusEnqueued:  2,
	domainChat.StatusSent:      3,
	domainChat.StatusDelivered: 4,
	domainChat.StatusRead:      5,
}

// GormRepository implements IChatStorageRepository on SQLite or Postgres.
type GormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *GormRepository) InitializeSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&contactModel{}, &chatModel{}, &messageModel{})
}

func (r *GormRepository) UpsertContact(ctx context.Context, contact domainChat.Contact) (domainChat.Contact, error) {
	phone := utils.NormalizePhone(contact.Phone)
	if phone == "" {
		return domainChat.Contact{}, pkgError.ValidationError("phone is required")
	}

	var out contactModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&out, "phone_number = ?", phone).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out = contactModel{
				PhoneNumber:   phone,
				Name:          contact.Name,
				AmoContactID:  contact.AmoContactID,
				AmoLeadID:     contact.AmoLeadID,
				ChatID:        utils.ChatIDForPhone(phone),
				LastMessageAt: contact.LastMessageAt,
			}
			return tx.Create(&out).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if contact.Name != "" && contact.Name != out.Name {
			updates["name"] = contact.Name
		}
		if contact.AmoContactID > 0 {
			updates["amo_contact_id"] = contact.AmoContactID
		}
		if contact.AmoLeadID > 0 {
			updates["amo_lead_id"] = contact.AmoLeadID
		}
		if contact.LastMessageAt != nil {
			updates["last_message_at"] = *contact.LastMessageAt
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&out).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&out, "phone_number = ?", phone).Error
	})
	if err != nil {
		return domainChat.Contact{}, err
	}
	return fromContactModel(out), nil
}

func (r *GormRepository) GetContactByPhone(ctx context.Context, phone string) (domainChat.Contact, error) {
	var m contactModel
	err := r.db.WithContext(ctx).First(&m, "phone_number = ?", utils.NormalizePhone(phone)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainChat.Contact{}, pkgError.NotFoundError("contact not found")
		}
		return domainChat.Contact{}, err
	}
	return fromContactModel(m), nil
}

func (r *GormRepository) ListContacts(ctx context.Context, page domainChat.Page) ([]domainChat.Contact, error) {
	limit, offset := bounds(page)
	var models []contactModel
	err := r.db.WithContext(ctx).
		Order("last_message_at IS NULL, last_message_at DESC, phone_number ASC").
		Limit(limit).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return mapContacts(models), nil
}

// SearchContacts matches the query against the phone digits and the name.
func (r *GormRepository) SearchContacts(ctx context.Context, query string, limit int) ([]domainChat.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domainChat.Contact{}, nil
	}
	limit, _ = bounds(domainChat.Page{Limit: limit})

	tx := r.db.WithContext(ctx).Where("LOWER(name) LIKE ?", "%"+strings.ToLower(query)+"%")
	// A fragment is matched as typed; normalizing would rewrite its prefix.
	if digits := utils.Digits(query); digits != "" {
		tx = tx.Or("phone_number LIKE ?", "%"+digits+"%")
	}

	var models []contactModel
	if err := tx.Order("name ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return mapContacts(models), nil
}

func (r *GormRepository) UpdateContactName(ctx context.Context, phone, name string) (domainChat.Contact, error) {
	phone = utils.NormalizePhone(phone)
	res := r.db.WithContext(ctx).Model(&contactModel{}).Where("phone_number = ?", phone).Update("name", name)
	if res.Error != nil {
		return domainChat.Contact{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domainChat.Contact{}, pkgError.NotFoundError("contact not found")
	}
	if err := r.db.WithContext(ctx).Model(&chatModel{}).Where("contact_phone = ?", phone).Update("contact_name", name).Error; err != nil {
		return domainChat.Contact{}, err
	}
	return r.GetContactByPhone(ctx, phone)
}

func (r *GormRepository) SetContactCRM(ctx context.Context, phone string, amoContactID, amoLeadID int64) error {
	updates := map[string]any{}
	if amoContactID > 0 {
		updates["amo_contact_id"] = amoContactID
	}
	if amoLeadID > 0 {
		updates["amo_lead_id"] = amoLeadID
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&contactModel{}).
		Where("phone_number = ?", utils.NormalizePhone(phone)).
		Updates(updates).Error
}

// EnsureChat returns the chat for phone, creating it on first contact. A
// non-empty name refreshes the stored contact name.
func (r *GormRepository) EnsureChat(ctx context.Context, phone, name string) (domainChat.Chat, error) {
	phone = utils.NormalizePhone(phone)
	if phone == "" {
		return domainChat.Chat{}, pkgError.ValidationError("phone is required")
	}
	chatID := utils.ChatIDForPhone(phone)

	var m chatModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&m, "id = ?", chatID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m = chatModel{
				ID:           chatID,
				ContactPhone: phone,
				ContactName:  name,
				Status:       domainChat.ChatStatusActive,
			}
			return tx.Create(&m).Error
		}
		if err != nil {
			return err
		}
		if name != "" && name != m.ContactName {
			m.ContactName = name
			return tx.Model(&m).Update("contact_name", name).Error
		}
		return nil
	})
	if err != nil {
		return domainChat.Chat{}, err
	}
	return fromChatModel(m), nil
}

func (r *GormRepository) GetChat(ctx context.Context, chatID string) (domainChat.Chat, error) {
	var m chatModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainChat.Chat{}, pkgError.NotFoundError("chat not found")
		}
		return domainChat.Chat{}, err
	}
	chat := fromChatModel(m)
	last, err := r.lastMessage(ctx, chat.ID)
	if err != nil {
		return domainChat.Chat{}, err
	}
	chat.LastMessage = last
	return chat, nil
}

// ListChats returns chats by recent activity, each with its last message.
func (r *GormRepository) ListChats(ctx context.Context, page domainChat.Page) ([]domainChat.Chat, error) {
	limit, offset := bounds(page)
	var models []chatModel
	err := r.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, err
	}

	chats := make([]domainChat.Chat, 0, len(models))
	for _, m := range models {
		chat := fromChatModel(m)
		last, err := r.lastMessage(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		chat.LastMessage = last
		chats = append(chats, chat)
	}
	return chats, nil
}

func (r *GormRepository) lastMessage(ctx context.Context, chatID string) (*domainChat.Message, error) {
	var m messageModel
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("timestamp DESC, created_at DESC").Limit(1).Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, nil
	}
	msg := fromMessageModel(m)
	return &msg, nil
}

func (r *GormRepository) MarkChatRead(ctx context.Context, chatID string) error {
	res := r.db.WithContext(ctx).Model(&chatModel{}).Where("id = ?", chatID).Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgError.NotFoundError("chat not found")
	}
	return nil
}

// CreateMessage stores a message and bumps the chat: incoming messages raise
// the unread counter, every message moves the chat to the top of the list.
func (r *GormRepository) CreateMessage(ctx context.Context, message *domainChat.Message) error {
	if message == nil || message.ChatID == "" {
		return pkgError.ValidationError("chat_id is required")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = r.now()
	}
	if message.MessageType == "" {
		message.MessageType = "text"
	}
	if message.Status == "" {
		if message.Direction == domainChat.DirectionIncoming {
			message.Status = domainChat.StatusReceived
		} else {
			message.Status = domainChat.StatusPending
		}
	}

	model := toMessageModel(*message)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}

		chatUpdates := map[string]any{"updated_at": r.now()}
		if message.Direction == domainChat.DirectionIncoming {
			chatUpdates["unread_count"] = gorm.Expr("unread_count + 1")
		}
		if err := tx.Model(&chatModel{}).Where("id = ?", message.ChatID).Updates(chatUpdates).Error; err != nil {
			return err
		}

		phone := utils.PhoneFromChatID(message.ChatID)
		return tx.Model(&contactModel{}).Where("phone_number = ?", phone).
			Update("last_message_at", message.Timestamp).Error
	})
}

// GetMessages returns the most recent page of a chat in chronological order.
func (r *GormRepository) GetMessages(ctx context.Context, chatID string, page domainChat.Page) ([]domainChat.Message, error) {
	limit, offset := bounds(page)
	var models []messageModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("timestamp DESC, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]domainChat.Message, len(models))
	for i, m := range models {
		out[len(models)-1-i] = fromMessageModel(m)
	}
	return out, nil
}

// UpdateMessageStatusByProviderID applies a delivery event. It returns nil
// when no message carries that provider id. Failed always applies; other
// states only move forward.
func (r *GormRepository) UpdateMessageStatusByProviderID(ctx context.Context, providerID, status string) (*domainChat.Message, error) {
	if providerID == "" {
		return nil, nil
	}

	var m messageModel
	err := r.db.WithContext(ctx).Where("provider_message_id = ?", providerID).Limit(1).Find(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, nil
	}

	if status != domainChat.StatusFailed && statusRank[status] < statusRank[m.Status] {
		msg := fromMessageModel(m)
		return &msg, nil
	}
	if err := r.db.WithContext(ctx).Model(&m).Update("status", status).Error; err != nil {
		return nil, err
	}
	m.Status = status
	msg := fromMessageModel(m)
	return &msg, nil
}

func (r *GormRepository) SetMessageAmoLead(ctx context.Context, messageID string, amoLeadID int64) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).Where("id = ?", messageID).Update("amo_lead_id", amoLeadID).Error
}

// ChatIDsForLead lists chats whose messages or contact reference the lead.
func (r *GormRepository) ChatIDsForLead(ctx context.Context, amoLeadID int64) ([]string, error) {
	var fromMessages []string
	if err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("amo_lead_id = ?", amoLeadID).
		Distinct().Pluck("chat_id", &fromMessages).Error; err != nil {
		return nil, err
	}
	var fromContacts []string
	if err := r.db.WithContext(ctx).Model(&contactModel{}).
		Where("amo_lead_id = ?", amoLeadID).
		Pluck("chat_id", &fromContacts).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fromMessages)+len(fromContacts))
	out := make([]string, 0, len(fromMessages)+len(fromContacts))
	for _, id := range append(fromMessages, fromContacts...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (r *GormRepository) Stats(ctx context.Context) (domainChat.Stats, error) {
	var s domainChat.Stats
	db := r.db.WithContext(ctx)
	if err := db.Model(&contactModel{}).Count(&s.Contacts).Error; err != nil {
		return s, err
	}
	if err := db.Model(&chatModel{}).Count(&s.Chats).Error; err != nil {
		return s, err
	}
	if err := db.Model(&messageModel{}).Count(&s.Messages).Error; err != nil {
		return s, err
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if err := db.Model(&messageModel{}).Where("created_at > ?", since).Count(&s.MessagesLast24h).Error; err != nil {
		return s, err
	}
	if err := db.Model(&messageModel{}).Where("status = ?", domainChat.StatusFailed).Count(&s.FailedMessages).Error; err != nil {
		return s, err
	}
	return s, nil
}

func bounds(page domainChat.Page) (int, int) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func mapContacts(models []contactModel) []domainChat.Contact {
	out := make([]domainChat.Contact, len(models))
	for i, m := range models {
		out[i] = fromContactModel(m)
	}
	return out
}
