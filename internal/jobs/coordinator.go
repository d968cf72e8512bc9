package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/memohai/jobrelay/internal/conversation"
	"github.com/memohai/jobrelay/internal/history"
)

// Creator starts a job on the remote runner.
type Creator interface {
	CreateJob(ctx context.Context, jobID, description string) (Job, error)
}

// StatusQuerier reports on jobs the runner is working on.
type StatusQuerier interface {
	JobStatus(ctx context.Context, jobID string) (StatusReport, error)
}

type Summarizer interface {
	SummarizeJob(ctx context.Context, results Results) string
}

// Notifier delivers text to a chat. Oversized text is the notifier's problem.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// ChatResolver names the single destination chat, or "" when none is set up.
type ChatResolver interface {
	ChatID() string
}

// Coordinator ties job creation, status queries and completion notices
// to the destination chat's conversation history.
type Coordinator struct {
	logger     *slog.Logger
	creator    Creator
	status     StatusQuerier
	summarizer Summarizer
	notifier   Notifier
	chats      ChatResolver
	store      history.Store
	locker     *history.Locker
	newID      func() string
}

func NewCoordinator(log *slog.Logger, creator Creator, status StatusQuerier, summarizer Summarizer, notifier Notifier, chats ChatResolver, store history.Store, locker *history.Locker) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if locker == nil {
		locker = history.NewLocker()
	}
	return &Coordinator{
		logger:     log.With(slog.String("component", "jobs")),
		creator:    creator,
		status:     status,
		summarizer: summarizer,
		notifier:   notifier,
		chats:      chats,
		store:      store,
		locker:     locker,
		newID:      uuid.NewString,
	}
}

// CreateJob hands description to the runner under a fresh id and returns the
// runner's record unchanged. Failures are not retried.
func (c *Coordinator) CreateJob(ctx context.Context, description string) (Job, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Job{}, ErrMissingJobField
	}
	jobID := c.newID()
	job, err := c.creator.CreateJob(ctx, jobID, description)
	if err != nil {
		c.logger.Error("create job failed", slog.String("job_id", jobID), slog.Any("error", err))
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (c *Coordinator) GetStatus(ctx context.Context, jobID string) (StatusReport, error) {
	report, err := c.status.JobStatus(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return StatusReport{}, fmt.Errorf("job status: %w", err)
	}
	return report, nil
}

// OnCompletion notifies the destination chat that a job finished and records
// the notice in that chat's history. Pushes that are not job branches and
// deployments with no destination chat are acknowledged and skipped.
func (c *Coordinator) OnCompletion(ctx context.Context, payload CompletionPayload) (CompletionResult, error) {
	jobID, ok := payload.ResolveJobID()
	if !ok {
		return CompletionResult{OK: true, Skipped: true, Reason: ReasonNotAJob}, nil
	}
	chatID := ""
	if c.chats != nil {
		chatID = strings.TrimSpace(c.chats.ChatID())
	}
	if chatID == "" {
		return CompletionResult{OK: true, Skipped: true, Reason: ReasonNoChatSetup}, nil
	}

	message := c.summarizer.SummarizeJob(ctx, payload.Results(jobID))

	unlock := c.locker.Lock(chatID)
	defer unlock()

	if err := c.notifier.SendMessage(ctx, chatID, message); err != nil {
		return CompletionResult{}, fmt.Errorf("notify chat: %w", err)
	}
	if err := history.Append(ctx, c.store, chatID, conversation.AssistantMessage(message)); err != nil {
		return CompletionResult{}, fmt.Errorf("record job notice: %w", err)
	}
	c.logger.Info("job completion notified", slog.String("job_id", jobID), slog.String("status", payload.Status))
	return CompletionResult{OK: true, Notified: true, JobID: jobID}, nil
}
