package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/memohai/jobrelay/internal/llm"
)

const (
	ToolCreateJob    = "create_job"
	ToolGetJobStatus = "get_job_status"
)

// Service is the part of the Coordinator the chat tools need.
type Service interface {
	CreateJob(ctx context.Context, description string) (Job, error)
	GetStatus(ctx context.Context, jobID string) (StatusReport, error)
}

// RegisterTools adds the job tools the chat model may call.
func RegisterTools(registry *llm.ToolRegistry, svc Service) error {
	if err := registry.Register(llm.ToolFunc(func(ctx context.Context, args map[string]any) (any, error) {
		desc := stringArg(args, "job_description")
		if desc == "" {
			return nil, ErrMissingJobField
		}
		job, err := svc.CreateJob(ctx, desc)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "job_id": job.ID, "branch": job.Branch}, nil
	}), llm.ToolDescriptor{
		Name:        ToolCreateJob,
		Description: "Create an autonomous job that runs in the repository. Returns the job id and branch.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"job_description": map[string]any{
					"type":        "string",
					"description": "Complete, standalone description of the task to perform.",
				},
			},
			"required": []string{"job_description"},
		},
	}); err != nil {
		return fmt.Errorf("register %s: %w", ToolCreateJob, err)
	}

	if err := registry.Register(llm.ToolFunc(func(ctx context.Context, args map[string]any) (any, error) {
		return svc.GetStatus(ctx, stringArg(args, "job_id"))
	}), llm.ToolDescriptor{
		Name:        ToolGetJobStatus,
		Description: "List running and queued jobs, or check one job when job_id is given.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"job_id": map[string]any{
					"type":        "string",
					"description": "Optional job id to narrow the report to.",
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("register %s: %w", ToolGetJobStatus, err)
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}
