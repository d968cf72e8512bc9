package jobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/memohai/jobrelay/internal/config"
)

const githubAPIVersion = "2022-11-28"

// GitHubRunner creates jobs as branches in a repository whose Actions
// workflow runs every job/* branch, and reports on those workflow runs.
type GitHubRunner struct {
	logger     *slog.Logger
	client     *http.Client
	baseURL    string
	owner      string
	repo       string
	baseBranch string
	now        func() time.Time
}

func NewGitHubRunner(log *slog.Logger, cfg config.GitHubConfig) *GitHubRunner {
	if log == nil {
		log = slog.Default()
	}
	client := &http.Client{Timeout: 30 * time.Second}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
		client.Timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultGitHubAPIURL
	}
	baseBranch := strings.TrimSpace(cfg.BaseBranch)
	if baseBranch == "" {
		baseBranch = config.DefaultBaseBranch
	}
	return &GitHubRunner{
		logger:     log.With(slog.String("component", "github_runner")),
		client:     client,
		baseURL:    baseURL,
		owner:      strings.TrimSpace(cfg.Owner),
		repo:       strings.TrimSpace(cfg.Repo),
		baseBranch: baseBranch,
		now:        time.Now,
	}
}

// APIError is a non-2xx GitHub response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api: status %d: %s", e.StatusCode, e.Message)
}

func (g *GitHubRunner) configured() error {
	if g.owner == "" || g.repo == "" {
		return ErrNotConfigured
	}
	return nil
}

// CreateJob branches job/<id> off the base branch and commits the job
// description to logs/<id>/job.md, which starts the runner workflow.
func (g *GitHubRunner) CreateJob(ctx context.Context, jobID, description string) (Job, error) {
	if err := g.configured(); err != nil {
		return Job{}, err
	}
	branch := EncodeBranch(jobID)

	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := g.do(ctx, http.MethodGet, g.repoPath("git/ref/heads/"+g.baseBranch), nil, &ref); err != nil {
		return Job{}, fmt.Errorf("get base ref: %w", err)
	}

	createRef := map[string]string{"ref": "refs/heads/" + branch, "sha": ref.Object.SHA}
	if err := g.do(ctx, http.MethodPost, g.repoPath("git/refs"), createRef, nil); err != nil {
		return Job{}, fmt.Errorf("create branch: %w", err)
	}

	file := map[string]string{
		"message": "job: " + commitTitle(description),
		"content": base64.StdEncoding.EncodeToString([]byte(description)),
		"branch":  branch,
	}
	if err := g.do(ctx, http.MethodPut, g.repoPath("contents/logs/"+jobID+"/job.md"), file, nil); err != nil {
		return Job{}, fmt.Errorf("write job file: %w", err)
	}

	g.logger.Info("job created", slog.String("job_id", jobID), slog.String("branch", branch))
	return Job{ID: jobID, Branch: branch}, nil
}

type workflowRun struct {
	ID           int64     `json:"id"`
	HeadBranch   string    `json:"head_branch"`
	Status       string    `json:"status"`
	HTMLURL      string    `json:"html_url"`
	RunStartedAt time.Time `json:"run_started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type workflowStep struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// JobStatus lists queued and running job workflows, narrowed to jobID when set.
func (g *GitHubRunner) JobStatus(ctx context.Context, jobID string) (StatusReport, error) {
	if err := g.configured(); err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Jobs: []RunStatus{}}
	for _, status := range []string{"in_progress", "queued"} {
		var page struct {
			WorkflowRuns []workflowRun `json:"workflow_runs"`
		}
		query := url.Values{"status": {status}, "per_page": {"100"}}
		if err := g.do(ctx, http.MethodGet, g.repoPath("actions/runs")+"?"+query.Encode(), nil, &page); err != nil {
			return StatusReport{}, fmt.Errorf("list %s runs: %w", status, err)
		}
		for _, run := range page.WorkflowRuns {
			id, ok := DecodeBranch(run.HeadBranch)
			if !ok {
				continue
			}
			if jobID != "" && id != jobID {
				continue
			}
			rs := RunStatus{
				JobID:  id,
				Branch: run.HeadBranch,
				Status: run.Status,
				RunID:  run.ID,
				URL:    run.HTMLURL,
			}
			if !run.RunStartedAt.IsZero() {
				rs.StartedAt = run.RunStartedAt.UTC().Format(time.RFC3339)
				rs.DurationMinutes = int(g.now().Sub(run.RunStartedAt).Minutes())
			}
			if !run.UpdatedAt.IsZero() {
				rs.UpdatedAt = run.UpdatedAt.UTC().Format(time.RFC3339)
			}
			if run.Status == "in_progress" {
				report.Running++
				if err := g.fillSteps(ctx, &rs); err != nil {
					g.logger.Warn("list run steps failed", slog.Int64("run_id", run.ID), slog.Any("error", err))
				}
			} else {
				report.Queued++
			}
			report.Jobs = append(report.Jobs, rs)
		}
	}
	return report, nil
}

func (g *GitHubRunner) fillSteps(ctx context.Context, rs *RunStatus) error {
	var page struct {
		Jobs []struct {
			Steps []workflowStep `json:"steps"`
		} `json:"jobs"`
	}
	if err := g.do(ctx, http.MethodGet, g.repoPath(fmt.Sprintf("actions/runs/%d/jobs", rs.RunID)), nil, &page); err != nil {
		return err
	}
	for _, job := range page.Jobs {
		for _, step := range job.Steps {
			rs.StepsTotal++
			switch step.Status {
			case "completed":
				rs.StepsCompleted++
			case "in_progress":
				if rs.CurrentStep == "" {
					rs.CurrentStep = step.Name
				}
			}
		}
	}
	return nil
}

func (g *GitHubRunner) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s/%s", url.PathEscape(g.owner), url.PathEscape(g.repo), suffix)
}

func (g *GitHubRunner) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func commitTitle(description string) string {
	title := strings.TrimSpace(description)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	if r := []rune(title); len(r) > 72 {
		title = string(r[:69]) + "..."
	}
	return title
}
