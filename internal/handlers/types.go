package handlers

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type CreateJobRequest struct {
	Job string `json:"job" validate:"required"`
}

type RegisterWebhookRequest struct {
	BotToken   string `json:"bot_token" validate:"required"`
	WebhookURL string `json:"webhook_url" validate:"required,url"`
}

type RegisterWebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  string `json:"result,omitempty"`
}

// AckResponse is returned to Telegram for every update.
type AckResponse struct {
	OK bool `json:"ok"`
}
