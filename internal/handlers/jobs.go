package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/jobrelay/internal/jobs"
	"github.com/memohai/jobrelay/internal/route"
)

// JobService is the part of the job coordinator the HTTP surface drives.
type JobService interface {
	CreateJob(ctx context.Context, description string) (jobs.Job, error)
	GetStatus(ctx context.Context, jobID string) (jobs.StatusReport, error)
}

type JobsHandler struct {
	logger  *slog.Logger
	service JobService
}

func NewJobsHandler(log *slog.Logger, service JobService) *JobsHandler {
	return &JobsHandler{
		logger:  log.With(slog.String("handler", "jobs")),
		service: service,
	}
}

func (h *JobsHandler) Register(e *echo.Echo) {
	e.POST(route.Webhook, h.Create)
	e.GET(route.JobsStatus, h.Status)
}

// Create godoc
// @Summary Create a job on the remote runner
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body CreateJobRequest true "Job description"
// @Success 200 {object} jobs.Job
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhook [post]
func (h *JobsHandler) Create(c echo.Context) error {
	var req CreateJobRequest
	if err := bindJSON(c, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	req.Job = strings.TrimSpace(req.Job)
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing job field")
	}

	job, err := h.service.CreateJob(c.Request().Context(), req.Job)
	if err != nil {
		if errors.Is(err, jobs.ErrMissingJobField) {
			return echo.NewHTTPError(http.StatusBadRequest, "Missing job field")
		}
		h.logger.Error("create job failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create job")
	}
	return c.JSON(http.StatusOK, job)
}

// Status godoc
// @Summary List active job runs
// @Tags jobs
// @Produce json
// @Param job_id query string false "Narrow to one job"
// @Success 200 {object} jobs.StatusReport
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /jobs/status [get]
func (h *JobsHandler) Status(c echo.Context) error {
	report, err := h.service.GetStatus(c.Request().Context(), c.QueryParam("job_id"))
	if err != nil {
		h.logger.Error("job status failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get job status")
	}
	return c.JSON(http.StatusOK, report)
}
