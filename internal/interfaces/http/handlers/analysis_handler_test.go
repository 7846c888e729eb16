package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/internal/application/analysis"
	"github.com/parcelview/geofusion/internal/domain/fusion"
	"github.com/parcelview/geofusion/pkg/errors"
)

func analysisRouter(runner AnalysisRunner, jobs JobRunner) *gin.Engine {
	h := NewAnalysisHandler(runner, jobs)
	router := gin.New()
	router.POST("/api/v1/analysis/fuse", h.Fuse)
	router.POST("/api/v1/analysis/jobs", h.SubmitJob)
	router.GET("/api/v1/analysis/jobs/:id", h.JobResult)
	return router
}

func sampleResult() *analysis.AnalysisResult {
	return &analysis.AnalysisResult{
		Features:   []fusion.MergedFeature{},
		FieldMap:   fusion.FieldMap{"crime": "RATE_crime"},
		MultiLayer: true,
	}
}

func TestFuse(t *testing.T) {
	runner := &stubRunner{result: sampleResult()}
	router := analysisRouter(runner, nil)

	rec, body := doJSON(t, router, http.MethodPost, "/api/v1/analysis/fuse", analysis.AnalysisRequest{
		LayerIDs:   []string{"tracts", "crime"},
		QueryTerms: "crime by tract",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["multi_layer"])
	assert.Equal(t, []string{"tracts", "crime"}, runner.lastReq.LayerIDs)
}

func TestFuseMalformedBody(t *testing.T) {
	router := analysisRouter(&stubRunner{result: sampleResult()}, nil)

	rec := doRaw(t, router, http.MethodPost, "/api/v1/analysis/fuse", []byte("{broken"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFuseErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "unknown layer",
			err:        errors.New(errors.ErrCodeLayerNotFound, "layer not found"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no primary layer",
			err:        errors.New(errors.ErrCodeFusionNoPrimaryLayer, "at least one layer id is required"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "source down",
			err:        errors.New(errors.ErrCodeSourceUnavailable, "minio unreachable"),
			wantStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := analysisRouter(&stubRunner{err: tt.err}, nil)

			rec, body := doJSON(t, router, http.MethodPost, "/api/v1/analysis/fuse", analysis.AnalysisRequest{
				LayerIDs: []string{"tracts"},
			})

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, errors.GetCode(tt.err).String(), body["code"])
		})
	}
}

func TestFuseMasksServerErrors(t *testing.T) {
	router := analysisRouter(&stubRunner{
		err: errors.New(errors.ErrCodeInternal, "pgx: connection refused on 10.0.0.3"),
	}, nil)

	rec, body := doJSON(t, router, http.MethodPost, "/api/v1/analysis/fuse", analysis.AnalysisRequest{
		LayerIDs: []string{"tracts"},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["message"])
	assert.NotContains(t, body["message"], "10.0.0.3")
}

func TestSubmitJob(t *testing.T) {
	router := analysisRouter(&stubRunner{}, &stubJobs{jobID: "job-7"})

	rec, body := doJSON(t, router, http.MethodPost, "/api/v1/analysis/jobs", analysis.AnalysisRequest{
		LayerIDs: []string{"tracts", "crime"},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-7", body["job_id"])
	assert.Equal(t, "queued", body["status"])
}

func TestSubmitJobWithoutBroker(t *testing.T) {
	router := analysisRouter(&stubRunner{}, nil)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/analysis/jobs", analysis.AnalysisRequest{
		LayerIDs: []string{"tracts"},
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobResult(t *testing.T) {
	router := analysisRouter(&stubRunner{}, &stubJobs{result: sampleResult()})

	rec, body := doJSON(t, router, http.MethodGet, "/api/v1/analysis/jobs/job-7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["multi_layer"])
}

func TestJobResultPending(t *testing.T) {
	router := analysisRouter(&stubRunner{}, &stubJobs{
		resultErr: errors.New(errors.ErrCodeNotFound, "no result for job"),
	})

	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/analysis/jobs/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
