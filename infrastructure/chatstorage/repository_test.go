package chatstorage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AzielCF/wa-amo-bridge/core/config"
	"github.com/AzielCF/wa-amo-bridge/core/database"
	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *GormRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "chat.db")}, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := NewGormRepository(db)
	require.NoError(t, repo.InitializeSchema(context.Background()))
	return repo
}

func TestUpsertContact_CreatesThenMerges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	c, err := repo.UpsertContact(ctx, domainChat.Contact{Phone: "+7 (900) 123-45-67", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "79001234567", c.Phone)
	assert.Equal(t, "chat_79001234567", c.ChatID)

	c, err = repo.UpsertContact(ctx, domainChat.Contact{Phone: "89001234567", AmoContactID: 42})
	require.NoError(t, err)
	assert.Equal(t, "Ann", c.Name)
	assert.Equal(t, int64(42), c.AmoContactID)

	contacts, err := repo.ListContacts(ctx, domainChat.Page{})
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestUpsertContact_RejectsEmptyPhone(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.UpsertContact(context.Background(), domainChat.Contact{Phone: "--"})
	var vErr pkgError.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestGetContactByPhone_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetContactByPhone(context.Background(), "79990000000")
	var nf pkgError.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSearchAndRename(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertContact(ctx, domainChat.Contact{Phone: "79001234567", Name: "Ann Smith"})
	require.NoError(t, err)
	_, err = repo.UpsertContact(ctx, domainChat.Contact{Phone: "79007654321", Name: "Bob"})
	require.NoError(t, err)
	_, err = repo.EnsureChat(ctx, "79007654321", "Bob")
	require.NoError(t, err)

	byName, err := repo.SearchContacts(ctx, "smith", 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "79001234567", byName[0].Phone)

	byDigits, err := repo.SearchContacts(ctx, "7654", 10)
	require.NoError(t, err)
	require.Len(t, byDigits, 1)
	assert.Equal(t, "Bob", byDigits[0].Name)

	_, err = repo.UpsertContact(ctx, domainChat.Contact{Phone: "14155550100", Name: "Carol"})
	require.NoError(t, err)
	byFragment, err := repo.SearchContacts(ctx, "415-555-0100", 10)
	require.NoError(t, err)
	require.Len(t, byFragment, 1)
	assert.Equal(t, "14155550100", byFragment[0].Phone)

	renamed, err := repo.UpdateContactName(ctx, "79007654321", "Robert")
	require.NoError(t, err)
	assert.Equal(t, "Robert", renamed.Name)

	chat, err := repo.GetChat(ctx, "chat_79007654321")
	require.NoError(t, err)
	assert.Equal(t, "Robert", chat.ContactName)

	_, err = repo.UpdateContactName(ctx, "70000000000", "Nobody")
	var nf pkgError.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestMessages_ChronologicalPagesAndUnread(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.EnsureChat(ctx, "79001234567", "Ann")
	require.NoError(t, err)
	_, err = repo.UpsertContact(ctx, domainChat.Contact{Phone: "79001234567"})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		dir := domainChat.DirectionIncoming
		if i == 1 {
			dir = domainChat.DirectionOutgoing
		}
		msg := &domainChat.Message{ChatID: chat.ID, Direction: dir, Content: text, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.CreateMessage(ctx, msg))
		assert.NotEmpty(t, msg.ID)
	}

	msgs, err := repo.GetMessages(ctx, chat.ID, domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.Equal(t, domainChat.StatusReceived, msgs[0].Status)
	assert.Equal(t, domainChat.StatusPending, msgs[1].Status)

	latest, err := repo.GetMessages(ctx, chat.ID, domainChat.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Content)
	assert.Equal(t, "three", latest[1].Content)

	chats, err := repo.ListChats(ctx, domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 2, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "three", chats[0].LastMessage.Content)

	contact, err := repo.GetContactByPhone(ctx, "79001234567")
	require.NoError(t, err)
	require.NotNil(t, contact.LastMessageAt)
	assert.True(t, contact.LastMessageAt.Equal(base.Add(2*time.Minute)))

	require.NoError(t, repo.MarkChatRead(ctx, chat.ID))
	chat, err = repo.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Zero(t, chat.UnreadCount)

	var nf pkgError.NotFoundError
	assert.ErrorAs(t, repo.MarkChatRead(ctx, "chat_missing"), &nf)
}

func TestUpdateMessageStatus_OnlyMovesForward(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.EnsureChat(ctx, "79001234567", "")
	require.NoError(t, err)
	msg := &domainChat.Message{ChatID: chat.ID, Direction: domainChat.DirectionOutgoing, Content: "hi", ProviderMessageID: "gs-1", Status: domainChat.StatusSent}
	require.NoError(t, repo.CreateMessage(ctx, msg))

	updated, err := repo.UpdateMessageStatusByProviderID(ctx, "gs-1", domainChat.StatusRead)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, domainChat.StatusRead, updated.Status)

	updated, err = repo.UpdateMessageStatusByProviderID(ctx, "gs-1", domainChat.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domainChat.StatusRead, updated.Status)

	updated, err = repo.UpdateMessageStatusByProviderID(ctx, "gs-1", domainChat.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, domainChat.StatusFailed, updated.Status)

	missing, err := repo.UpdateMessageStatusByProviderID(ctx, "gs-unknown", domainChat.StatusRead)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestChatIDsForLead(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.EnsureChat(ctx, "79001111111", "")
	require.NoError(t, err)
	_, err = repo.EnsureChat(ctx, "79002222222", "")
	require.NoError(t, err)

	msg := &domainChat.Message{ChatID: a.ID, Direction: domainChat.DirectionIncoming, Content: "x"}
	require.NoError(t, repo.CreateMessage(ctx, msg))
	require.NoError(t, repo.SetMessageAmoLead(ctx, msg.ID, 900))

	_, err = repo.UpsertContact(ctx, domainChat.Contact{Phone: "79002222222"})
	require.NoError(t, err)
	require.NoError(t, repo.SetContactCRM(ctx, "79002222222", 10, 900))
	_, err = repo.UpsertContact(ctx, domainChat.Contact{Phone: "79001111111", AmoLeadID: 900})
	require.NoError(t, err)

	ids, err := repo.ChatIDsForLead(ctx, 900)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chat_79001111111", "chat_79002222222"}, ids)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domainChat.Stats{Contacts: 2, Chats: 2, Messages: 1, MessagesLast24h: 1}, stats)
}

func TestStats_CountsFailedMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	chat, err := repo.EnsureChat(ctx, "79001234567", "")
	require.NoError(t, err)
	require.NoError(t, repo.CreateMessage(ctx, &domainChat.Message{ChatID: chat.ID, Direction: domainChat.DirectionOutgoing, Content: "a", Status: domainChat.StatusFailed}))
	require.NoError(t, repo.CreateMessage(ctx, &domainChat.Message{ChatID: chat.ID, Direction: domainChat.DirectionOutgoing, Content: "b", Status: domainChat.StatusSent}))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Messages)
	assert.Equal(t, int64(2), stats.MessagesLast24h)
	assert.Equal(t, int64(1), stats.FailedMessages)
}
