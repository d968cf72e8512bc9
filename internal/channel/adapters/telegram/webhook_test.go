package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sentText struct {
	ChatID string
	Text   string
	HTML   bool
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sentText
	reactions []int
	downloads []string
	reactErr  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeMessenger) SendHTML(_ context.Context, chatID, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{ChatID: chatID, Text: html, HTML: true})
	return nil
}

func (f *fakeMessenger) React(_ context.Context, _ string, messageID int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID)
	return f.reactErr
}

func (f *fakeMessenger) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, fileID)
	return []byte("ogg"), nil
}

type fakeSettings struct {
	secret string
	chatID string
	code   string
}

func (s fakeSettings) TelegramWebhookSecret() string { return s.secret }
func (s fakeSettings) ChatID() string                { return s.chatID }
func (s fakeSettings) VerificationCode() string      { return s.code }

type fakeTranscriber struct {
	text string
	err  error
	name string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, filename string, _ []byte) (string, error) {
	f.name = filename
	return f.text, f.err
}

type dispatched struct {
	ChatID string
	Text   string
	CtxErr error
}

type fakeDispatcher struct {
	calls []dispatched
}

func (f *fakeDispatcher) HandleMessage(ctx context.Context, chatID, text string) {
	f.calls = append(f.calls, dispatched{ChatID: chatID, Text: text, CtxErr: ctx.Err()})
}

type adapterHarness struct {
	adapter    *Adapter
	messenger  *fakeMessenger
	dispatcher *fakeDispatcher
}

func newAdapterHarness(settings fakeSettings, transcriber Transcriber) adapterHarness {
	h := adapterHarness{messenger: &fakeMessenger{}, dispatcher: &fakeDispatcher{}}
	h.adapter = NewAdapter(nil, h.messenger, settings, transcriber, h.dispatcher)
	h.adapter.async = func(fn func()) { fn() }
	return h
}

func textUpdate(chatID int64, messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: messageID,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}}
}

func TestHandleUpdateRejectsBadSecret(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{secret: "s3cret", chatID: "42"}, nil)
	got := h.adapter.HandleUpdate(context.Background(), "wrong", textUpdate(42, 1, "hi"))
	if got != OutcomeBadSecret {
		t.Fatalf("expected %s, got %s", OutcomeBadSecret, got)
	}
	if len(h.messenger.reactions) != 0 || len(h.dispatcher.calls) != 0 {
		t.Fatal("expected no side effects")
	}
}

func TestHandleUpdateWithoutMessage(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{chatID: "42"}, nil)
	if got := h.adapter.HandleUpdate(context.Background(), "", tgbotapi.Update{UpdateID: 9}); got != OutcomeNoMessage {
		t.Fatalf("expected %s, got %s", OutcomeNoMessage, got)
	}
}

func TestHandleUpdateVerificationWithoutDestination(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{code: "123456"}, nil)
	got := h.adapter.HandleUpdate(context.Background(), "", textUpdate(99, 1, "123456"))
	if got != OutcomeVerified {
		t.Fatalf("expected %s, got %s", OutcomeVerified, got)
	}
	if len(h.messenger.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(h.messenger.sent))
	}
	reply := h.messenger.sent[0]
	if !reply.HTML || reply.ChatID != "99" || reply.Text != "Your chat ID:\n<code>99</code>" {
		t.Fatalf("unexpected reply: %#v", reply)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Fatal("verification must not reach the agent")
	}
}

func TestHandleUpdateFiltersOtherChats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings fakeSettings
	}{
		{name: "no destination", settings: fakeSettings{}},
		{name: "different chat", settings: fakeSettings{chatID: "42"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newAdapterHarness(tt.settings, nil)
			if got := h.adapter.HandleUpdate(context.Background(), "", textUpdate(7, 1, "hello")); got != OutcomeFiltered {
				t.Fatalf("expected %s, got %s", OutcomeFiltered, got)
			}
			if len(h.messenger.reactions) != 0 || len(h.dispatcher.calls) != 0 {
				t.Fatal("expected no side effects")
			}
		})
	}
}

func TestHandleUpdateDispatchesText(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{secret: "s3cret", chatID: "42"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := h.adapter.HandleUpdate(ctx, "s3cret", textUpdate(42, 5, "  create a job  "))
	if got != OutcomeDispatched {
		t.Fatalf("expected %s, got %s", OutcomeDispatched, got)
	}
	if len(h.messenger.reactions) != 1 || h.messenger.reactions[0] != 5 {
		t.Fatalf("expected ack on message 5, got %v", h.messenger.reactions)
	}
	if len(h.dispatcher.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(h.dispatcher.calls))
	}
	call := h.dispatcher.calls[0]
	if call.ChatID != "42" || call.Text != "create a job" {
		t.Fatalf("unexpected dispatch: %#v", call)
	}
	if call.CtxErr != nil {
		t.Fatalf("agent context must outlive the request: %v", call.CtxErr)
	}
}

func TestHandleUpdateReactionFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{chatID: "42"}, nil)
	h.messenger.reactErr = errors.New("reactions disabled")
	if got := h.adapter.HandleUpdate(context.Background(), "", textUpdate(42, 1, "hi")); got != OutcomeDispatched {
		t.Fatalf("expected %s, got %s", OutcomeDispatched, got)
	}
}

func TestHandleUpdateAcceptsChannelPost(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{chatID: "-100"}, nil)
	update := tgbotapi.Update{ChannelPost: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: -100}, Text: "status?"}}
	if got := h.adapter.HandleUpdate(context.Background(), "", update); got != OutcomeDispatched {
		t.Fatalf("expected %s, got %s", OutcomeDispatched, got)
	}
}

func TestHandleUpdateEmptyText(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{chatID: "42"}, nil)
	if got := h.adapter.HandleUpdate(context.Background(), "", textUpdate(42, 1, "   ")); got != OutcomeEmpty {
		t.Fatalf("expected %s, got %s", OutcomeEmpty, got)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Fatal("empty text must not be dispatched")
	}
}

func voiceUpdate(chatID int64) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Voice:     &tgbotapi.Voice{FileID: "voice-1"},
	}}
}

func TestHandleUpdateVoiceWithoutTranscriber(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{chatID: "42"}, nil)
	if got := h.adapter.HandleUpdate(context.Background(), "", voiceUpdate(42)); got != OutcomeVoiceUnsupported {
		t.Fatalf("expected %s, got %s", OutcomeVoiceUnsupported, got)
	}
	if len(h.messenger.sent) != 1 || h.messenger.sent[0].Text != VoiceUnsupportedText {
		t.Fatalf("unexpected replies: %#v", h.messenger.sent)
	}
	if len(h.messenger.downloads) != 0 {
		t.Fatal("voice must not be downloaded without a transcriber")
	}
}

func TestHandleUpdateVoiceTranscriptionFails(t *testing.T) {
	t.Parallel()

	h := newAdapterHarness(fakeSettings{chatID: "42"}, &fakeTranscriber{err: errors.New("whisper down")})
	if got := h.adapter.HandleUpdate(context.Background(), "", voiceUpdate(42)); got != OutcomeTranscriptionFailed {
		t.Fatalf("expected %s, got %s", OutcomeTranscriptionFailed, got)
	}
	if len(h.messenger.sent) != 1 || h.messenger.sent[0].Text != TranscriptionFailedText {
		t.Fatalf("unexpected replies: %#v", h.messenger.sent)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Fatal("failed transcription must not be dispatched")
	}
}

func TestHandleUpdateVoiceTranscribed(t *testing.T) {
	t.Parallel()

	transcriber := &fakeTranscriber{text: "what is running?"}
	h := newAdapterHarness(fakeSettings{chatID: "42"}, transcriber)
	if got := h.adapter.HandleUpdate(context.Background(), "", voiceUpdate(42)); got != OutcomeDispatched {
		t.Fatalf("expected %s, got %s", OutcomeDispatched, got)
	}
	if len(h.messenger.downloads) != 1 || h.messenger.downloads[0] != "voice-1" {
		t.Fatalf("unexpected downloads: %v", h.messenger.downloads)
	}
	if transcriber.name != "voice.ogg" {
		t.Fatalf("unexpected filename %q", transcriber.name)
	}
	if len(h.dispatcher.calls) != 1 || h.dispatcher.calls[0].Text != "what is running?" {
		t.Fatalf("unexpected dispatch: %#v", h.dispatcher.calls)
	}
}
