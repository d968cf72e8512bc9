package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/jobrelay/internal/channel"
)

const (
	maxMessageLength = 4096
	// Markdown is chunked below the hard limit so the rendered HTML of a
	// chunk still fits in one message.
	markdownChunkLimit = 3500
	typingInterval     = 4 * time.Second
	maxDownloadBytes   = 20 << 20
)

// TokenSource yields the current bot token. The token may change at runtime.
type TokenSource interface {
	BotToken() string
}

// Client sends to the Telegram Bot API on behalf of whichever bot token is
// current. Bot handles are cached per token.
type Client struct {
	logger       *slog.Logger
	tokens       TokenSource
	apiEndpoint  string
	fileEndpoint string
	httpClient   *http.Client
	policy       channel.OutboundPolicy
	typingEvery  time.Duration

	mu   sync.RWMutex
	bots map[string]*tgbotapi.BotAPI
}

type Option func(*Client)

// WithAPIEndpoint points the client at another Bot API server. The value uses
// the tgbotapi format, e.g. "http://localhost:8081/bot%s/%s".
func WithAPIEndpoint(endpoint string) Option {
	return func(c *Client) {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			return
		}
		c.apiEndpoint = endpoint
		c.fileEndpoint = fileEndpointFor(endpoint)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithOutboundPolicy(policy channel.OutboundPolicy) Option {
	return func(c *Client) {
		c.policy = channel.NormalizeOutboundPolicy(policy)
	}
}

func NewClient(log *slog.Logger, tokens TokenSource, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		logger:       log.With(slog.String("adapter", "telegram")),
		tokens:       tokens,
		apiEndpoint:  tgbotapi.APIEndpoint,
		fileEndpoint: tgbotapi.FileEndpoint,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		policy: channel.NormalizeOutboundPolicy(channel.OutboundPolicy{
			TextChunkLimit: markdownChunkLimit,
			ChunkerMode:    channel.ChunkerModeMarkdown,
		}),
		typingEvery: typingInterval,
		bots:        make(map[string]*tgbotapi.BotAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	botLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: c.logger})
	})
	return c
}

var botLoggerOnce sync.Once

func fileEndpointFor(apiEndpoint string) string {
	if strings.HasSuffix(apiEndpoint, "/bot%s/%s") {
		return strings.TrimSuffix(apiEndpoint, "/bot%s/%s") + "/file/bot%s/%s"
	}
	return tgbotapi.FileEndpoint
}

func (c *Client) bot() (*tgbotapi.BotAPI, error) {
	token := ""
	if c.tokens != nil {
		token = strings.TrimSpace(c.tokens.BotToken())
	}
	if token == "" {
		return nil, errors.New("telegram bot token not configured")
	}
	return c.botFor(token)
}

// botFor returns the cached bot for token, creating it (which calls getMe)
// on first use.
func (c *Client) botFor(token string) (*tgbotapi.BotAPI, error) {
	c.mu.RLock()
	bot, ok := c.bots[token]
	c.mu.RUnlock()
	if ok {
		return bot, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if bot, ok := c.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, c.apiEndpoint, c.httpClient)
	if err != nil {
		c.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	c.bots[token] = bot
	return bot, nil
}

// SendMessage delivers Markdown text to chatID as Telegram HTML, split into as
// many messages as needed. A chunk Telegram refuses to parse is resent as
// plain text.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	bot, err := c.bot()
	if err != nil {
		return err
	}
	for _, chunk := range c.policy.Chunker(sanitizeText(text), c.policy.TextChunkLimit) {
		if err := c.sendChunk(ctx, bot, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, bot *tgbotapi.BotAPI, chatID, markdown string) error {
	rendered := MarkdownToHTML(markdown)
	if rendered != "" && utf8.RuneCountInString(rendered) <= maxMessageLength {
		err := c.send(ctx, bot, chatID, rendered, tgbotapi.ModeHTML)
		if err == nil || !isParseError(err) {
			return err
		}
		c.logger.Warn("html rejected, falling back to plain text", slog.String("chat_id", chatID), slog.Any("error", err))
	}
	for _, part := range channel.ChunkText(markdown, maxMessageLength) {
		if err := c.send(ctx, bot, chatID, part, ""); err != nil {
			return err
		}
	}
	return nil
}

// SendHTML sends text that is already Telegram HTML as a single message.
func (c *Client) SendHTML(ctx context.Context, chatID, html string) error {
	bot, err := c.bot()
	if err != nil {
		return err
	}
	return c.send(ctx, bot, chatID, html, tgbotapi.ModeHTML)
}

func (c *Client) send(ctx context.Context, bot *tgbotapi.BotAPI, target, text, parseMode string) error {
	msg, err := newTextMessage(target, truncateText(text))
	if err != nil {
		return err
	}
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	return channel.SendWithRetry(ctx, c.policy, retryAfter, func() error {
		_, err := bot.Send(msg)
		return err
	})
}

func newTextMessage(target, text string) (tgbotapi.MessageConfig, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "@") {
		return tgbotapi.NewMessageToChannel(target, text), nil
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram target must be @username or chat_id")
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

// React sets the bot's emoji reaction on a message.
func (c *Client) React(_ context.Context, chatID string, messageID int, emoji string) error {
	bot, err := c.bot()
	if err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("chat_id", chatID)
	params.AddNonEmpty("message_id", strconv.Itoa(messageID))
	params.AddNonEmpty("reaction", fmt.Sprintf(`[{"type":"emoji","emoji":"%s"}]`, emoji))
	_, err = bot.MakeRequest("setMessageReaction", params)
	return err
}

func (c *Client) SendTyping(_ context.Context, chatID string) error {
	bot, err := c.bot()
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return err
	}
	_, err = bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return err
}

// StartTyping shows the typing indicator in chatID until the returned stop
// function is called or ctx ends. Telegram clears the indicator after about
// five seconds, so it is re-sent periodically. stop may be called any number
// of times.
func (c *Client) StartTyping(ctx context.Context, chatID string) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	stop = func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(c.typingEvery)
		defer ticker.Stop()
		for {
			if err := c.SendTyping(ctx, chatID); err != nil {
				c.logger.Debug("send typing failed", slog.String("chat_id", chatID), slog.Any("error", err))
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return stop
}

// DownloadFile fetches a file the bot received, by its file id.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	bot, err := c.bot()
	if err != nil {
		return nil, err
	}
	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("resolve telegram file: %w", err)
	}
	downloadURL := fmt.Sprintf(c.fileEndpoint, bot.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download file status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}

// SetWebhook registers webhookURL for the bot behind token. Telegram echoes
// secret back in the x-telegram-bot-api-secret-token header on every update.
// It returns Telegram's description of the result.
func (c *Client) SetWebhook(_ context.Context, token, webhookURL, secret string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("telegram bot token is required")
	}
	bot, err := c.botFor(token)
	if err != nil {
		return "", fmt.Errorf("create bot: %w", err)
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", strings.TrimSpace(webhookURL))
	params.AddNonEmpty("secret_token", strings.TrimSpace(secret))
	resp, err := bot.MakeRequest("setWebhook", params)
	if err != nil {
		return "", fmt.Errorf("set webhook: %w", err)
	}
	return resp.Description, nil
}

func apiError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

func isParseError(err error) bool {
	apiErr, ok := apiError(err)
	return ok && apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "can't parse entities")
}

// retryAfter reports 429 responses together with Telegram's retry_after hint.
func retryAfter(err error) (time.Duration, bool) {
	apiErr, ok := apiError(err)
	if !ok || apiErr.Code != http.StatusTooManyRequests {
		return 0, false
	}
	return time.Duration(apiErr.RetryAfter) * time.Second, true
}

// sanitizeText drops invalid UTF-8, which the Bot API rejects outright.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText cuts text to maxMessageLength runes, appending "..." when it
// had to.
func truncateText(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	runes := []rune(text)
	return string(runes[:maxMessageLength-len(suffix)]) + suffix
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
