package jobs

import (
	"errors"
	"strings"
)

var (
	ErrMissingJobField = errors.New("missing job field")
	ErrNotConfigured   = errors.New("job runner is not configured")
)

// Job is the record returned when a job is created.
type Job struct {
	ID     string `json:"job_id"`
	Branch string `json:"branch"`
}

// CompletionPayload is what the job runner posts when a job branch finishes.
type CompletionPayload struct {
	JobID         string   `json:"job_id,omitempty"`
	Branch        string   `json:"branch,omitempty"`
	Job           string   `json:"job,omitempty"`
	Status        string   `json:"status,omitempty"`
	CommitMessage string   `json:"commit_message,omitempty"`
	ChangedFiles  []string `json:"changed_files,omitempty"`
	MergeResult   string   `json:"merge_result,omitempty"`
	PRURL         string   `json:"pr_url,omitempty"`
	RunURL        string   `json:"run_url,omitempty"`
	Log           string   `json:"log,omitempty"`
}

// ResolveJobID prefers the explicit id and falls back to the branch name.
func (p CompletionPayload) ResolveJobID() (string, bool) {
	if id := strings.TrimSpace(p.JobID); id != "" {
		return id, true
	}
	return DecodeBranch(p.Branch)
}

// Results is the summarizer input. Empty fields are left out of the prompt.
type Results struct {
	JobID         string
	Job           string
	CommitMessage string
	ChangedFiles  []string
	Status        string
	MergeResult   string
	PRURL         string
	RunURL        string
	Log           string
}

func (p CompletionPayload) Results(jobID string) Results {
	return Results{
		JobID:         jobID,
		Job:           p.Job,
		CommitMessage: p.CommitMessage,
		ChangedFiles:  p.ChangedFiles,
		Status:        p.Status,
		MergeResult:   p.MergeResult,
		PRURL:         p.PRURL,
		RunURL:        p.RunURL,
		Log:           p.Log,
	}
}

// CompletionResult is the webhook acknowledgement.
type CompletionResult struct {
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Notified bool   `json:"notified,omitempty"`
	JobID    string `json:"job_id,omitempty"`
}

const (
	ReasonNotAJob     = "not a job"
	ReasonNoChatSetup = "no chat configured"
)

// StatusReport lists the runner's active job runs.
type StatusReport struct {
	Jobs    []RunStatus `json:"jobs"`
	Queued  int         `json:"queued"`
	Running int         `json:"running"`
}

type RunStatus struct {
	JobID           string `json:"job_id"`
	Branch          string `json:"branch"`
	Status          string `json:"status"`
	RunID           int64  `json:"run_id"`
	URL             string `json:"url,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	CurrentStep     string `json:"current_step,omitempty"`
	StepsCompleted  int    `json:"steps_completed"`
	StepsTotal      int    `json:"steps_total"`
}
