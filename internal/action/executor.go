package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/memohai/jobrelay/internal/jobs"
	"github.com/memohai/jobrelay/internal/prune"
)

const maxResponseBody = 4 << 10

// JobCreator is the slice of the job coordinator job actions need.
type JobCreator interface {
	CreateJob(ctx context.Context, description string) (jobs.Job, error)
}

// Executor runs actions. It is shared by the trigger dispatcher and the cron
// scheduler.
type Executor struct {
	logger     *slog.Logger
	jobs       JobCreator
	httpClient *http.Client
	shell      string
}

func NewExecutor(log *slog.Logger, jobCreator JobCreator, httpClient *http.Client) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Executor{
		logger:     log.With(slog.String("component", "action")),
		jobs:       jobCreator,
		httpClient: httpClient,
		shell:      "sh",
	}
}

// Run performs a under its timeout, with placeholders resolved against req.
func (e *Executor) Run(ctx context.Context, a Action, req Request) error {
	if err := a.Validate(); err != nil {
		return err
	}
	timeout, _ := a.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch a.Type {
	case TypeJob:
		return e.runJob(ctx, a, req)
	case TypeCommand:
		return e.runCommand(ctx, a, req)
	case TypeWebhook:
		return e.runWebhook(ctx, a, req)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
}

func (e *Executor) runJob(ctx context.Context, a Action, req Request) error {
	if e.jobs == nil {
		return jobs.ErrNotConfigured
	}
	job, err := e.jobs.CreateJob(ctx, req.Expand(a.Job, nil))
	if err != nil {
		return err
	}
	e.logger.Info("job action created job", slog.String("job_id", job.ID), slog.String("branch", job.Branch))
	return nil
}

// runCommand substitutes shell-quoted values so request data cannot break
// out of its argument.
func (e *Executor) runCommand(ctx context.Context, a Action, req Request) error {
	script := req.Expand(a.Command, shellQuote)
	cmd := exec.CommandContext(ctx, e.shell, "-c", script)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	output := prune.Edges(strings.TrimSpace(string(out)), "command output", prune.CommandOutput)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return fmt.Errorf("command failed: %w: %s", err, output)
	}
	e.logger.Info("command action finished", slog.String("output", output))
	return nil
}

func (e *Executor) runWebhook(ctx context.Context, a Action, req Request) error {
	payload := map[string]any{
		"vars": req.expandValue(a.Vars),
		"data": req.Data(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, a.method(), req.Expand(a.URL, nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.Headers {
		httpReq.Header.Set(k, req.Expand(v, nil))
	}
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %d: %s", a.URL, resp.StatusCode, prune.Edges(strings.TrimSpace(string(respBody)), "response", prune.CommandOutput))
	}
	return nil
}
