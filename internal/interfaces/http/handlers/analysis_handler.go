package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/application/analysis"
	"github.com/parcelview/geofusion/pkg/errors"
)

var errAsyncDisabled = errors.New(errors.ErrCodeServiceUnavailable, "async analysis is not configured")

// AnalysisRunner is the synchronous fusion entry point.
type AnalysisRunner interface {
	Run(ctx context.Context, req analysis.AnalysisRequest) (*analysis.AnalysisResult, error)
}

// JobRunner is the async job surface.
type JobRunner interface {
	Submit(ctx context.Context, req analysis.AnalysisRequest) (string, error)
	Result(ctx context.Context, jobID string) (*analysis.AnalysisResult, error)
}

// AnalysisHandler serves fusion runs, synchronous and queued.
type AnalysisHandler struct {
	runner AnalysisRunner
	jobs   JobRunner
}

// NewAnalysisHandler wires an AnalysisHandler.  jobs may be nil when the
// deployment has no message broker; the async routes then answer 503.
func NewAnalysisHandler(runner AnalysisRunner, jobs JobRunner) *AnalysisHandler {
	return &AnalysisHandler{runner: runner, jobs: jobs}
}

// Fuse handles POST /api/v1/analysis/fuse.
func (h *AnalysisHandler) Fuse(c *gin.Context) {
	var req analysis.AnalysisRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// jobAccepted is the 202 body for a queued run.
type jobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// SubmitJob handles POST /api/v1/analysis/jobs.
func (h *AnalysisHandler) SubmitJob(c *gin.Context) {
	if h.jobs == nil {
		respondError(c, errAsyncDisabled)
		return
	}

	var req analysis.AnalysisRequest
	if !bindJSON(c, &req) {
		return
	}

	jobID, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, jobAccepted{JobID: jobID, Status: "queued"})
}

// JobResult handles GET /api/v1/analysis/jobs/:id.
func (h *AnalysisHandler) JobResult(c *gin.Context) {
	if h.jobs == nil {
		respondError(c, errAsyncDisabled)
		return
	}

	result, err := h.jobs.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
