package chatstorage

import (
	"time"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
)

type contactModel struct {
	PhoneNumber   string `gorm:"primaryKey;column:phone_number"`
	Name          string
	AmoContactID  int64      `gorm:"column:amo_contact_id;index"`
	AmoLeadID     int64      `gorm:"column:amo_lead_id;index"`
	ChatID        string     `gorm:"column:chat_id"`
	LastMessageAt *time.Time `gorm:"column:last_message_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

func (contactModel) TableName() string {
	return "contacts"
}

type chatModel struct {
	ID           string    `gorm:"primaryKey"`
	ContactPhone string    `gorm:"column:contact_phone;uniqueIndex"`
	ContactName  string    `gorm:"column:contact_name"`
	Status       string    `gorm:"not null;default:active"`
	UnreadCount  int       `gorm:"column:unread_count;not null;default:0"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (chatModel) TableName() string {
	return "chats"
}

type messageModel struct {
	ID                string `gorm:"primaryKey"`
	ChatID            string `gorm:"column:chat_id;index:idx_messages_chat_ts,priority:1"`
	Direction         string `gorm:"not null"`
	Sender            string
	Recipient         string
	Content           string
	MessageType       string `gorm:"column:message_type;not null;default:text"`
	MediaURL          string `gorm:"column:media_url"`
	Status            string
	ProviderMessageID string    `gorm:"column:provider_message_id;index"`
	AmoLeadID         int64     `gorm:"column:amo_lead_id;index"`
	Timestamp         time.Time `gorm:"index:idx_messages_chat_ts,priority:2"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (messageModel) TableName() string {
	return "messages"
}

func fromContactModel(m contactModel) domainChat.Contact {
	return domainChat.Contact{
		Phone:         m.PhoneNumber,
		Name:          m.Name,
		AmoContactID:  m.AmoContactID,
		AmoLeadID:     m.AmoLeadID,
		ChatID:        m.ChatID,
		LastMessageAt: m.LastMessageAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromChatModel(m chatModel) domainChat.Chat {
	return domainChat.Chat{
		ID:           m.ID,
		ContactPhone: m.ContactPhone,
		ContactName:  m.ContactName,
		Status:       m.Status,
		UnreadCount:  m.UnreadCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toMessageModel(m domainChat.Message) messageModel {
	return messageModel{
		ID:                m.ID,
		ChatID:            m.ChatID,
		Direction:         string(m.Direction),
		Sender:            m.Sender,
		Recipient:         m.Recipient,
		Content:           m.Content,
		MessageType:       m.MessageType,
		MediaURL:          m.MediaURL,
		Status:            m.Status,
		ProviderMessageID: m.ProviderMessageID,
		AmoLeadID:         m.AmoLeadID,
		Timestamp:         m.Timestamp,
	}
}

func fromMessageModel(m messageModel) domainChat.Message {
	return domainChat.Message{
		ID:                m.ID,
		ChatID:            m.ChatID,
		Direction:         domainChat.Direction(m.Direction),
		Sender:            m.Sender,
		Recipient:         m.Recipient,
		Content:           m.Content,
		MessageType:       m.MessageType,
		MediaURL:          m.MediaURL,
		Status:            m.Status,
		ProviderMessageID: m.ProviderMessageID,
		AmoLeadID:         m.AmoLeadID,
		Timestamp:         m.Timestamp,
	}
}
