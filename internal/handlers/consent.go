package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/models"
	"edupulse-backend/internal/repository"
)

type ConsentHandler struct {
	repo *repository.ConsentRepo
}

func NewConsentHandler(repo *repository.ConsentRepo) *ConsentHandler {
	return &ConsentHandler{repo: repo}
}

// Get returns the caller's own consent record.
func (h *ConsentHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	studentID := middleware.GetUserID(r.Context())

	consent, err := h.repo.Get(r.Context(), tenantID, studentID, r.URL.Query().Get("course_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if consent == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "No consent on file", r))
		return
	}

	writeJSON(w, http.StatusOK, consent)
}

// Upsert writes the caller's grants. Students manage only their own
// consent; there is no instructor override by design.
func (h *ConsentHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	studentID := middleware.GetUserID(r.Context())

	var req struct {
		CourseID              string `json:"course_id"`
		PerformanceAnalytics  bool   `json:"performance_analytics"`
		PredictiveAnalytics   bool   `json:"predictive_analytics"`
		BenchmarkComparison   bool   `json:"benchmark_comparison"`
		InstructorVisibility  bool   `json:"instructor_visibility"`
		RetentionDays         int    `json:"retention_days"`
		AnonymizationRequired bool   `json:"anonymization_required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.RetentionDays <= 0 {
		req.RetentionDays = 365
	}

	consent := &models.PrivacyConsent{
		TenantID:              tenantID,
		StudentID:             studentID,
		CourseID:              req.CourseID,
		PerformanceAnalytics:  req.PerformanceAnalytics,
		PredictiveAnalytics:   req.PredictiveAnalytics,
		BenchmarkComparison:   req.BenchmarkComparison,
		InstructorVisibility:  req.InstructorVisibility,
		RetentionDays:         req.RetentionDays,
		AnonymizationRequired: req.AnonymizationRequired,
	}

	if err := h.repo.Upsert(r.Context(), consent); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, consent)
}

// Withdraw voids every grant the caller holds, effective immediately.
func (h *ConsentHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	studentID := middleware.GetUserID(r.Context())

	if err := h.repo.Withdraw(r.Context(), tenantID, studentID, time.Now().UTC()); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Consent withdrawn"})
}
