// Package action runs the side effects that triggers and cron entries are
// configured with.
package action

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Type selects what an Action does.
type Type string

const (
	TypeJob     Type = "job"
	TypeCommand Type = "command"
	TypeWebhook Type = "webhook"
)

const (
	DefaultCommandTimeout = 60 * time.Second
	DefaultWebhookTimeout = 30 * time.Second
)

var ErrInvalidAction = errors.New("invalid action")

// Action is one configured side effect. Which fields apply depends on Type.
type Action struct {
	Type Type `yaml:"type" json:"type"`

	// Job is the job description for TypeJob.
	Job string `yaml:"job,omitempty" json:"job,omitempty"`

	// Command is run with sh -c for TypeCommand.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Method  string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Vars    map[string]any    `yaml:"vars,omitempty" json:"vars,omitempty"`

	// Timeout is a Go duration string; empty uses the per-type default.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (a Action) Validate() error {
	switch a.Type {
	case TypeJob:
		if strings.TrimSpace(a.Job) == "" {
			return fmt.Errorf("%w: job action needs a job description", ErrInvalidAction)
		}
	case TypeCommand:
		if strings.TrimSpace(a.Command) == "" {
			return fmt.Errorf("%w: command action needs a command", ErrInvalidAction)
		}
	case TypeWebhook:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("%w: webhook action needs a url", ErrInvalidAction)
		}
		switch strings.ToUpper(a.method()) {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return fmt.Errorf("%w: unsupported webhook method %q", ErrInvalidAction, a.Method)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
	if _, err := a.timeout(); err != nil {
		return err
	}
	return nil
}

func (a Action) method() string {
	if m := strings.TrimSpace(a.Method); m != "" {
		return strings.ToUpper(m)
	}
	return http.MethodPost
}

func (a Action) timeout() (time.Duration, error) {
	if raw := strings.TrimSpace(a.Timeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%w: bad timeout %q", ErrInvalidAction, a.Timeout)
		}
		return d, nil
	}
	if a.Type == TypeWebhook {
		return DefaultWebhookTimeout, nil
	}
	return DefaultCommandTimeout, nil
}

// Describe is a short label for logs.
func (a Action) Describe() string {
	switch a.Type {
	case TypeWebhook:
		return string(a.Type) + " " + a.method() + " " + a.URL
	default:
		return string(a.Type)
	}
}
