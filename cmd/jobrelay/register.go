package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/jobrelay/internal/channel/adapters/telegram"
	"github.com/memohai/jobrelay/internal/config"
	"github.com/memohai/jobrelay/internal/logger"
)

func newRegisterCmd() *cobra.Command {
	var webhookURL, token string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Point the Telegram bot's webhook at this service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			creds := config.NewCredentials(cfg)
			if strings.TrimSpace(token) == "" {
				token = creds.BotToken()
			}
			if strings.TrimSpace(webhookURL) == "" {
				webhookURL = cfg.Telegram.WebhookURL
			}
			if token == "" || strings.TrimSpace(webhookURL) == "" {
				return errors.New("both a bot token and a webhook url are required")
			}

			client := telegram.NewClient(logger.L, creds, telegram.WithAPIEndpoint(cfg.Telegram.APIEndpoint))
			result, err := client.SetWebhook(cmd.Context(), token, webhookURL, creds.TelegramWebhookSecret())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook registered: %s\n", result)
			return nil
		},
	}
	cmd.Flags().StringVar(&webhookURL, "url", "", "public URL of /telegram/webhook (defaults to TELEGRAM_WEBHOOK_URL)")
	cmd.Flags().StringVar(&token, "token", "", "bot token (defaults to TELEGRAM_BOT_TOKEN)")
	return cmd
}
