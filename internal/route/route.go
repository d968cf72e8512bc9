// Package route names the fixed HTTP surface and normalizes request paths
// so the router, the auth gate and the trigger table agree on them.
package route

import "strings"

const (
	Webhook          = "/webhook"
	TelegramWebhook  = "/telegram/webhook"
	TelegramRegister = "/telegram/register"
	GitHubWebhook    = "/github/webhook"
	Ping             = "/ping"
	JobsStatus       = "/jobs/status"

	apiPrefix = "/api"
)

// Normalize strips an optional /api prefix and a trailing slash. The result
// always starts with "/".
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == apiPrefix {
		path = "/"
	} else if strings.HasPrefix(path, apiPrefix+"/") {
		path = strings.TrimPrefix(path, apiPrefix)
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// IsPublic reports whether path may be reached without the API key. These
// routes authenticate with their own webhook secrets.
func IsPublic(path string) bool {
	switch Normalize(path) {
	case TelegramWebhook, GitHubWebhook:
		return true
	default:
		return false
	}
}
