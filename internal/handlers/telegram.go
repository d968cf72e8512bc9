package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/jobrelay/internal/channel/adapters/telegram"
	"github.com/memohai/jobrelay/internal/route"
)

const HeaderTelegramSecret = "x-telegram-bot-api-secret-token"

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, secretHeader string, update tgbotapi.Update) telegram.Outcome
}

type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, token, webhookURL, secret string) (string, error)
}

// BotCredentials supplies the webhook secret and accepts a rotated token.
type BotCredentials interface {
	TelegramWebhookSecret() string
	SetBotToken(token string)
}

type TelegramHandler struct {
	logger    *slog.Logger
	updates   UpdateHandler
	registrar WebhookRegistrar
	creds     BotCredentials
}

func NewTelegramHandler(log *slog.Logger, updates UpdateHandler, registrar WebhookRegistrar, creds BotCredentials) *TelegramHandler {
	return &TelegramHandler{
		logger:    log.With(slog.String("handler", "telegram")),
		updates:   updates,
		registrar: registrar,
		creds:     creds,
	}
}

func (h *TelegramHandler) Register(e *echo.Echo) {
	e.POST(route.TelegramWebhook, h.Webhook)
	e.POST(route.TelegramRegister, h.RegisterWebhook)
}

// Webhook godoc
// @Summary Receive a Telegram update
// @Description Always answers 200 so Telegram does not redeliver.
// @Tags telegram
// @Accept json
// @Produce json
// @Success 200 {object} AckResponse
// @Router /telegram/webhook [post]
func (h *TelegramHandler) Webhook(c echo.Context) error {
	var update tgbotapi.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
		h.logger.Warn("decode update failed", slog.Any("error", err))
		return c.JSON(http.StatusOK, AckResponse{OK: true})
	}
	outcome := h.updates.HandleUpdate(c.Request().Context(), c.Request().Header.Get(HeaderTelegramSecret), update)
	h.logger.Debug("update handled", slog.Int("update_id", update.UpdateID), slog.String("outcome", string(outcome)))
	return c.JSON(http.StatusOK, AckResponse{OK: true})
}

// RegisterWebhook godoc
// @Summary Point Telegram at this service and rotate the bot token
// @Tags telegram
// @Accept json
// @Produce json
// @Param request body RegisterWebhookRequest true "Bot token and public webhook URL"
// @Success 200 {object} RegisterWebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /telegram/register [post]
func (h *TelegramHandler) RegisterWebhook(c echo.Context) error {
	var req RegisterWebhookRequest
	if err := bindJSON(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	req.BotToken = strings.TrimSpace(req.BotToken)
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing bot_token or webhook_url")
	}

	result, err := h.registrar.SetWebhook(c.Request().Context(), req.BotToken, req.WebhookURL, h.creds.TelegramWebhookSecret())
	if err != nil {
		h.logger.Error("register webhook failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to register webhook")
	}
	h.creds.SetBotToken(req.BotToken)
	h.logger.Info("telegram webhook registered", slog.String("url", req.WebhookURL))
	return c.JSON(http.StatusOK, RegisterWebhookResponse{
		Success: true,
		Message: "Webhook registered",
		Result:  result,
	})
}
