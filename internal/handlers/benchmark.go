package handlers

import (
	"net/http"

	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/models"
	"edupulse-backend/internal/privacy"
)

type BenchmarkHandler struct {
	engine *privacy.Engine
}

func NewBenchmarkHandler(engine *privacy.Engine) *BenchmarkHandler {
	return &BenchmarkHandler{engine: engine}
}

// Get returns a noised course benchmark, or 404 when the consenting
// sample is too small. Insufficient data is not a retryable error and
// is deliberately indistinguishable from "no such benchmark".
func (h *BenchmarkHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	callerID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())

	q := r.URL.Query()
	courseID := q.Get("course_id")
	benchmarkType := q.Get("benchmark_type")
	aggregationLevel := q.Get("aggregation_level")

	if courseID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "course_id is required", r))
		return
	}
	if models.MinSampleSize(benchmarkType) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown benchmark_type", r))
		return
	}
	if aggregationLevel == "" {
		aggregationLevel = "course"
	}

	accessor := privacy.Accessor{ID: callerID.String(), Type: role}
	benchmark, err := h.engine.GetOrCreateBenchmark(
		r.Context(), tenantID, accessor,
		courseID, benchmarkType, aggregationLevel,
		q.Get("concept_id"), q.Get("assessment_id"),
	)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if benchmark == nil {
		writeJSON(w, http.StatusNotFound, errorResp("INSUFFICIENT_DATA", "Not enough consenting data for this benchmark", r))
		return
	}

	writeJSON(w, http.StatusOK, benchmark)
}
