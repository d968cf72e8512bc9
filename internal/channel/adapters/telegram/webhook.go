package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	AckReaction = "👍"

	VoiceUnsupportedText    = "Voice messages are not supported. Please set OPENAI_API_KEY to enable transcription."
	TranscriptionFailedText = "Sorry, I could not transcribe your voice message."
)

// Outcome names the state an update stopped in.
type Outcome string

const (
	OutcomeBadSecret           Outcome = "bad_secret"
	OutcomeNoMessage           Outcome = "no_message"
	OutcomeVerified            Outcome = "verified"
	OutcomeFiltered            Outcome = "filtered"
	OutcomeVoiceUnsupported    Outcome = "voice_unsupported"
	OutcomeTranscriptionFailed Outcome = "transcription_failed"
	OutcomeEmpty               Outcome = "empty"
	OutcomeDispatched          Outcome = "dispatched"
)

// Messenger is the subset of Client the adapter talks back through.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendHTML(ctx context.Context, chatID, html string) error
	React(ctx context.Context, chatID string, messageID int, emoji string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Settings resolves the per-deployment values the adapter filters on.
type Settings interface {
	TelegramWebhookSecret() string
	ChatID() string
	VerificationCode() string
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Dispatcher runs a conversational turn for a chat message.
type Dispatcher interface {
	HandleMessage(ctx context.Context, chatID, text string)
}

// Adapter turns Telegram updates into agent turns for the one configured chat.
type Adapter struct {
	logger      *slog.Logger
	messenger   Messenger
	settings    Settings
	transcriber Transcriber
	dispatcher  Dispatcher
	async       func(func())
}

// NewAdapter builds an Adapter. transcriber may be nil, in which case voice
// messages are declined.
func NewAdapter(log *slog.Logger, messenger Messenger, settings Settings, transcriber Transcriber, dispatcher Dispatcher) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:      log.With(slog.String("adapter", "telegram")),
		messenger:   messenger,
		settings:    settings,
		transcriber: transcriber,
		dispatcher:  dispatcher,
		async:       func(fn func()) { go fn() },
	}
}

// HandleUpdate processes one webhook update. secretHeader is the value of
// the x-telegram-bot-api-secret-token header. Whatever the outcome, Telegram
// should be answered with 200 so it does not redeliver.
func (a *Adapter) HandleUpdate(ctx context.Context, secretHeader string, update tgbotapi.Update) Outcome {
	if secret := a.settings.TelegramWebhookSecret(); secret != "" {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(secretHeader)) != 1 {
			a.logger.Warn("webhook secret mismatch")
			return OutcomeBadSecret
		}
	}

	msg := updateMessage(update)
	if msg == nil || msg.Chat == nil {
		return OutcomeNoMessage
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if code := a.settings.VerificationCode(); code != "" && msg.Text == code {
		reply := fmt.Sprintf("Your chat ID:\n<code>%s</code>", chatID)
		if err := a.messenger.SendHTML(ctx, chatID, reply); err != nil {
			a.logger.Error("send verification reply failed", slog.String("chat_id", chatID), slog.Any("error", err))
		}
		return OutcomeVerified
	}

	allowed := strings.TrimSpace(a.settings.ChatID())
	if allowed == "" || allowed != chatID {
		a.logger.Debug("message from unconfigured chat ignored", slog.String("chat_id", chatID))
		return OutcomeFiltered
	}

	if err := a.messenger.React(ctx, chatID, msg.MessageID, AckReaction); err != nil {
		a.logger.Warn("ack reaction failed", slog.String("chat_id", chatID), slog.Any("error", err))
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if fileID, filename, ok := voiceFile(msg); ok {
		if a.transcriber == nil {
			a.reply(ctx, chatID, VoiceUnsupportedText)
			return OutcomeVoiceUnsupported
		}
		transcript, err := a.transcribe(ctx, fileID, filename)
		if err != nil {
			a.logger.Error("transcribe voice failed", slog.String("chat_id", chatID), slog.Any("error", err))
			a.reply(ctx, chatID, TranscriptionFailedText)
			return OutcomeTranscriptionFailed
		}
		text = transcript
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return OutcomeEmpty
	}

	detached := context.WithoutCancel(ctx)
	a.async(func() {
		a.dispatcher.HandleMessage(detached, chatID, text)
	})
	return OutcomeDispatched
}

func (a *Adapter) transcribe(ctx context.Context, fileID, filename string) (string, error) {
	audio, err := a.messenger.DownloadFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	text, err := a.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty transcript")
	}
	return text, nil
}

func (a *Adapter) reply(ctx context.Context, chatID, text string) {
	if err := a.messenger.SendMessage(ctx, chatID, text); err != nil {
		a.logger.Error("send reply failed", slog.String("chat_id", chatID), slog.Any("error", err))
	}
}

func updateMessage(update tgbotapi.Update) *tgbotapi.Message {
	switch {
	case update.Message != nil:
		return update.Message
	case update.ChannelPost != nil:
		return update.ChannelPost
	case update.EditedMessage != nil:
		return update.EditedMessage
	default:
		return nil
	}
}

func voiceFile(msg *tgbotapi.Message) (fileID, filename string, ok bool) {
	switch {
	case msg.Voice != nil && msg.Voice.FileID != "":
		return msg.Voice.FileID, "voice.ogg", true
	case msg.Audio != nil && msg.Audio.FileID != "":
		name := strings.TrimSpace(msg.Audio.FileName)
		if name == "" {
			name = "audio.mp3"
		}
		return msg.Audio.FileID, name, true
	default:
		return "", "", false
	}
}
