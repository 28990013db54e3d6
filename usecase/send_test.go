package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	domainChat "github.com/AzielCF/wa-amo-bridge/domains/chat"
	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	domainRealtime "github.com/AzielCF/wa-amo-bridge/domains/realtime"
	domainSend "github.com/AzielCF/wa-amo-bridge/domains/send"
	pkgError "github.com/AzielCF/wa-amo-bridge/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotes struct {
	notes []domainCRM.Note
	err   error
}

func (n *recordingNotes) AddNote(_ context.Context, note domainCRM.Note) (*domainCRM.Note, error) {
	n.notes = append(n.notes, note)
	if n.err != nil {
		return nil, n.err
	}
	note.ID = int64(len(n.notes))
	return &note, nil
}

type sendFixture struct {
	svc        domainSend.ISendUsecase
	repo       domainChat.IChatStorageRepository
	provider   *fakeProvider
	pub        *recordingPublisher
	reconciler *stubReconciler
	notes      *recordingNotes
	mediaDir   string
}

func newSendFixture(t *testing.T) *sendFixture {
	t.Helper()
	f := &sendFixture{
		repo:       newRepo(t),
		provider:   &fakeProvider{configured: true, result: domainSend.Result{Success: true, MessageID: "gs-42", Status: "submitted"}},
		pub:        &recordingPublisher{},
		reconciler: &stubReconciler{},
		notes:      &recordingNotes{},
		mediaDir:   t.TempDir(),
	}
	sync := NewCRMSync(f.reconciler, f.repo, f.pub, &inlineDispatcher{})
	f.svc = NewSendService(f.provider, f.repo, f.pub, sync, f.notes, MediaOptions{Dir: f.mediaDir, PublicBase: "https://bridge.example/statics/media/"})
	return f
}

func TestSendText_PersistsAndSyncsOutgoing(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SendText(ctx, domainSend.MessageRequest{Phone: "+7 900 123-45-67", Message: "Hello"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "gs-42", resp.MessageID)
	assert.Equal(t, "79001234567", resp.Phone)
	assert.Equal(t, "chat_79001234567", resp.ChatID)
	assert.NotEmpty(t, resp.LocalID)
	assert.Equal(t, []string{"79001234567"}, f.provider.phones)

	messages, err := f.repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domainChat.DirectionOutgoing, messages[0].Direction)
	assert.Equal(t, domainChat.StatusSent, messages[0].Status)
	assert.Equal(t, "gs-42", messages[0].ProviderMessageID)
	assert.Equal(t, int64(22), messages[0].AmoLeadID)

	calls := f.reconciler.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domainCRM.DirectionOutgoing, calls[0].Direction)
	assert.Equal(t, "Hello", calls[0].Text)

	assert.Len(t, f.pub.byEvent(domainRealtime.EventNewMessage), 1)
}

func TestSendText_ProviderFailureIsNotPersisted(t *testing.T) {
	f := newSendFixture(t)
	f.provider.result = domainSend.Result{Success: false, Error: "Invalid Destination"}
	ctx := context.Background()

	resp, err := f.svc.SendText(ctx, domainSend.MessageRequest{Phone: "79001234567", Message: "Hello"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid Destination", resp.Error)

	stats, err := f.repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Messages)
	assert.Empty(t, f.reconciler.Calls())
}

func TestSendText_Validation(t *testing.T) {
	f := newSendFixture(t)
	_, err := f.svc.SendText(context.Background(), domainSend.MessageRequest{Phone: "12", Message: ""})
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)
	assert.Empty(t, f.provider.texts)
}

func TestSendText_NotConfigured(t *testing.T) {
	f := newSendFixture(t)
	f.provider.configured = false
	_, err := f.svc.SendText(context.Background(), domainSend.MessageRequest{Phone: "79001234567", Message: "Hello"})
	var notConfigured pkgError.NotConfiguredError
	require.ErrorAs(t, err, &notConfigured)
	assert.Equal(t, 503, notConfigured.StatusCode())
}

func TestSendMedia_URLUsesCaptionOrPlaceholder(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendMedia(ctx, domainSend.MediaRequest{Phone: "79001234567", MediaURL: "https://cdn.example/a.jpg"})
	require.NoError(t, err)
	_, err = f.svc.SendMedia(ctx, domainSend.MediaRequest{Phone: "79001234567", MediaType: domainSend.MediaDocument, MediaURL: "https://cdn.example/a.pdf", Caption: "Invoice"})
	require.NoError(t, err)

	require.Len(t, f.provider.media, 2)
	assert.Equal(t, domainSend.MediaImage, f.provider.media[0].Type)

	messages, err := f.repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "[IMAGE] https://cdn.example/a.jpg", messages[0].Content)
	assert.Equal(t, "image", messages[0].MessageType)
	assert.Equal(t, "https://cdn.example/a.jpg", messages[0].MediaURL)
	assert.Equal(t, "Invoice", messages[1].Content)
}

func TestSendMedia_UploadStoresFileAndPreview(t *testing.T) {
	f := newSendFixture(t)

	file := multipartImage(t, "photo one.png", 800, 400)
	resp, err := f.svc.SendMedia(context.Background(), domainSend.MediaRequest{Phone: "79001234567", MediaType: domainSend.MediaImage, File: file})
	require.NoError(t, err)
	require.True(t, resp.Success)

	require.Len(t, f.provider.media, 1)
	sent := f.provider.media[0]
	assert.True(t, strings.HasPrefix(sent.URL, "https://bridge.example/statics/media/"))
	assert.True(t, strings.HasSuffix(sent.URL, "-photo_one.png"))
	assert.Contains(t, sent.PreviewURL, "preview-")
	assert.Equal(t, "photo one.png", sent.Filename)

	entries, err := os.ReadDir(f.mediaDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var preview string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "preview-") {
			preview = filepath.Join(f.mediaDir, e.Name())
		}
	}
	require.NotEmpty(t, preview)
	fh, err := os.Open(preview)
	require.NoError(t, err)
	defer fh.Close()
	cfg, _, err := image.DecodeConfig(fh)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 160, cfg.Height)
}

func TestSendTemplate_ContentFormat(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendTemplate(ctx, domainSend.TemplateRequest{Phone: "79001234567", TemplateID: "welcome", Params: []string{"Ann", "42"}})
	require.NoError(t, err)

	messages, err := f.repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "[TEMPLATE: welcome] Ann, 42", messages[0].Content)
	assert.Equal(t, "template", messages[0].MessageType)
}

func TestSendFromCRM_AddsConfirmationNote(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SendFromCRM(ctx, domainSend.CRMSendRequest{Phone: "79001234567", Message: "On my way", LeadID: 77})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "added", resp.CRMNoteStatus)

	require.Len(t, f.notes.notes, 1)
	note := f.notes.notes[0]
	assert.Equal(t, int64(77), note.EntityID)
	assert.Equal(t, domainCRM.EntityLead, note.EntityType)
	assert.Equal(t, "✅ WhatsApp sent: On my way", note.Text)
	assert.Empty(t, f.reconciler.Calls())

	messages, err := f.repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(77), messages[0].AmoLeadID)
}

func TestSendFromCRM_NoteTargets(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SendFromCRM(ctx, domainSend.CRMSendRequest{Phone: "79001234567", Message: "x", ContactID: 5})
	require.NoError(t, err)
	assert.Equal(t, "added", resp.CRMNoteStatus)
	assert.Equal(t, domainCRM.EntityContact, f.notes.notes[0].EntityType)

	resp, err = f.svc.SendFromCRM(ctx, domainSend.CRMSendRequest{Phone: "79001234567", Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "skipped", resp.CRMNoteStatus)

	f.notes.err = errors.New("boom")
	resp, err = f.svc.SendFromCRM(ctx, domainSend.CRMSendRequest{Phone: "79001234567", Message: "x", LeadID: 1})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "failed", resp.CRMNoteStatus)
}

func TestMessageStatus_MirrorsOntoStoredMessage(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendText(ctx, domainSend.MessageRequest{Phone: "79001234567", Message: "Hello"})
	require.NoError(t, err)

	f.provider.status = domainSend.StatusResult{Success: true, Status: "read"}
	status, err := f.svc.MessageStatus(ctx, "gs-42")
	require.NoError(t, err)
	assert.Equal(t, "read", status.Status)

	messages, err := f.repo.GetMessages(ctx, "chat_79001234567", domainChat.Page{})
	require.NoError(t, err)
	assert.Equal(t, domainChat.StatusRead, messages[0].Status)
	assert.Len(t, f.pub.byEvent(domainRealtime.EventMessageStatusUpdated), 1)

	_, err = f.svc.MessageStatus(ctx, " ")
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestTemplates_UpstreamError(t *testing.T) {
	f := newSendFixture(t)
	f.provider.listErr = errors.New("gupshup: status 401: unauthorized")

	_, err := f.svc.Templates(context.Background())
	var upstreamErr pkgError.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, 502, upstreamErr.StatusCode())
}

func TestOptIn(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	phone, err := f.svc.OptIn(ctx, domainSend.OptInRequest{Phone: "8 900 123 45 67"})
	require.NoError(t, err)
	assert.Equal(t, "79001234567", phone)
	assert.Equal(t, []string{"79001234567"}, f.provider.optedIn)

	_, err = f.svc.OptIn(ctx, domainSend.OptInRequest{Phone: "12"})
	var validation pkgError.ValidationError
	assert.ErrorAs(t, err, &validation)

	f.provider.optInErr = errors.New("gupshup: status 400")
	_, err = f.svc.OptIn(ctx, domainSend.OptInRequest{Phone: "79001234567"})
	var upstreamErr pkgError.UpstreamError
	assert.ErrorAs(t, err, &upstreamErr)
}

func multipartImage(t *testing.T, name string, w, h int) *multipart.FileHeader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var raw bytes.Buffer
	require.NoError(t, png.Encode(&raw, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(10 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}
