// Package summary turns job results into the short chat notice sent when a
// job finishes.
package summary

import (
	"context"
	"log/slog"
	"strings"

	"github.com/memohai/jobrelay/internal/jobs"
	"github.com/memohai/jobrelay/internal/prompts"
)

// Fallback is sent whenever the model cannot produce a summary.
const Fallback = "Job finished."

// maxLogRunes keeps the tail of long agent logs, where failures usually are.
const maxLogRunes = 8000

type Completer interface {
	Complete(ctx context.Context, system, user, model string, maxTokens int64) (string, error)
}

type PromptRenderer interface {
	Render(name string, data map[string]any) (string, error)
}

type Summarizer struct {
	logger    *slog.Logger
	llm       Completer
	prompts   PromptRenderer
	model     string
	maxTokens int64
}

func New(log *slog.Logger, llm Completer, renderer PromptRenderer, model string, maxTokens int64) *Summarizer {
	if log == nil {
		log = slog.Default()
	}
	return &Summarizer{
		logger:    log.With(slog.String("component", "summary")),
		llm:       llm,
		prompts:   renderer,
		model:     model,
		maxTokens: maxTokens,
	}
}

// SummarizeJob never fails; any upstream problem yields Fallback.
func (s *Summarizer) SummarizeJob(ctx context.Context, results jobs.Results) string {
	system, err := s.prompts.Render(prompts.JobSummary, nil)
	if err != nil {
		s.logger.Error("render summary prompt failed", slog.Any("error", err))
		return Fallback
	}
	text, err := s.llm.Complete(ctx, system, BuildPrompt(results), s.model, s.maxTokens)
	if err != nil {
		s.logger.Warn("summarize job failed", slog.String("job_id", results.JobID), slog.Any("error", err))
		return Fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback
	}
	return text
}

// BuildPrompt lays out the fields that are present as Markdown sections.
func BuildPrompt(r jobs.Results) string {
	var b strings.Builder
	section := func(title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(title)
		b.WriteString("\n")
		b.WriteString(body)
	}

	section("Task", r.Job)
	section("Commit Message", r.CommitMessage)
	if len(r.ChangedFiles) > 0 {
		lines := make([]string, 0, len(r.ChangedFiles))
		for _, f := range r.ChangedFiles {
			if f = strings.TrimSpace(f); f != "" {
				lines = append(lines, "- "+f)
			}
		}
		section("Changed Files", strings.Join(lines, "\n"))
	}
	section("Status", r.Status)
	section("Merge Result", r.MergeResult)
	section("Pull Request", r.PRURL)
	section("Run", r.RunURL)
	section("Agent Log", tail(r.Log, maxLogRunes))
	return b.String()
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}
