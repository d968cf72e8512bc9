package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/jobrelay/internal/jobs"
	"github.com/memohai/jobrelay/internal/route"
)

const HeaderGitHubSecret = "x-github-webhook-secret-token"

type CompletionHandler interface {
	OnCompletion(ctx context.Context, payload jobs.CompletionPayload) (jobs.CompletionResult, error)
}

type GitHubSecretSource interface {
	GitHubWebhookSecret() string
}

type GitHubHandler struct {
	logger      *slog.Logger
	completions CompletionHandler
	secrets     GitHubSecretSource
}

func NewGitHubHandler(log *slog.Logger, completions CompletionHandler, secrets GitHubSecretSource) *GitHubHandler {
	return &GitHubHandler{
		logger:      log.With(slog.String("handler", "github")),
		completions: completions,
		secrets:     secrets,
	}
}

func (h *GitHubHandler) Register(e *echo.Echo) {
	e.POST(route.GitHubWebhook, h.Webhook)
}

// Webhook godoc
// @Summary Receive a job completion from the runner
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body jobs.CompletionPayload true "Completion payload"
// @Success 200 {object} jobs.CompletionResult
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /github/webhook [post]
func (h *GitHubHandler) Webhook(c echo.Context) error {
	if secret := strings.TrimSpace(h.secrets.GitHubWebhookSecret()); secret != "" {
		presented := c.Request().Header.Get(HeaderGitHubSecret)
		if subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
	}

	var payload jobs.CompletionPayload
	if err := bindJSON(c, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	result, err := h.completions.OnCompletion(c.Request().Context(), payload)
	if err != nil {
		h.logger.Error("job completion failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process job completion")
	}
	return c.JSON(http.StatusOK, result)
}
