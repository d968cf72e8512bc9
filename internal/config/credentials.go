package config

import (
	"strings"
	"sync"
)

// Credentials resolves secrets from Config on first use. Everything is
// immutable afterwards except the bot token, which SetBotToken rotates.
type Credentials struct {
	once sync.Once
	src  Config

	mu                    sync.RWMutex
	apiKey                string
	botToken              string
	telegramWebhookSecret string
	githubWebhookSecret   string
	chatID                string
	verificationCode      string
}

func NewCredentials(cfg Config) *Credentials {
	return &Credentials{src: cfg}
}

func (c *Credentials) resolve() {
	c.once.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.apiKey = strings.TrimSpace(c.src.Server.APIKey)
		c.botToken = strings.TrimSpace(c.src.Telegram.BotToken)
		c.telegramWebhookSecret = strings.TrimSpace(c.src.Telegram.WebhookSecret)
		c.githubWebhookSecret = strings.TrimSpace(c.src.GitHub.WebhookSecret)
		c.chatID = strings.TrimSpace(c.src.Telegram.ChatID)
		c.verificationCode = strings.TrimSpace(c.src.Telegram.VerificationCode)
	})
}

func (c *Credentials) read(field *string) string {
	c.resolve()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *field
}

func (c *Credentials) APIKey() string { return c.read(&c.apiKey) }

func (c *Credentials) BotToken() string { return c.read(&c.botToken) }

func (c *Credentials) TelegramWebhookSecret() string { return c.read(&c.telegramWebhookSecret) }

func (c *Credentials) GitHubWebhookSecret() string { return c.read(&c.githubWebhookSecret) }

// ChatID is the single destination chat allowed to talk to the bot.
func (c *Credentials) ChatID() string { return c.read(&c.chatID) }

func (c *Credentials) VerificationCode() string { return c.read(&c.verificationCode) }

// SetBotToken replaces the bot token for the rest of the process lifetime.
func (c *Credentials) SetBotToken(token string) {
	c.resolve()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.botToken = strings.TrimSpace(token)
}
