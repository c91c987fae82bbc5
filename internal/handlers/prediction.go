package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"edupulse-backend/internal/analyzer"
	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/models"
	"edupulse-backend/internal/privacy"
)

type PredictionHandler struct {
	analyzer *analyzer.Analyzer
	gate     *privacy.Gate
}

func NewPredictionHandler(a *analyzer.Analyzer, gate *privacy.Gate) *PredictionHandler {
	return &PredictionHandler{analyzer: a, gate: gate}
}

// Predict returns the early-warning estimate for a learner. The consent
// gate runs before any raw row is touched; a denial is an explicit 403,
// never a partial prediction.
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	callerID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())

	if q := r.URL.Query().Get("tenant_id"); q != "" {
		parsed, err := uuid.Parse(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid tenant_id", r))
			return
		}
		if parsed != tenantID {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Cannot read another tenant's predictions", r))
			return
		}
	}

	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		userIDStr = callerID.String()
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user_id", r))
		return
	}
	courseID := r.URL.Query().Get("course_id")

	permission := models.PermissionPredictive
	if userID != callerID {
		// Reading someone else's prediction additionally needs the
		// student's instructor-visibility grant.
		permission = models.PermissionInstructorVisibility
	}

	accessor := privacy.Accessor{ID: callerID.String(), Type: role}
	if err := h.gate.Authorize(r.Context(), tenantID, accessor, userID, courseID, permission, "prediction:read", "struggle prediction for user "+userID.String()); err != nil {
		handleServiceError(w, r, err)
		return
	}

	prediction := h.analyzer.Predict(r.Context(), tenantID, userID, courseID)
	writeJSON(w, http.StatusOK, prediction)
}
