package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"edupulse-backend/internal/intervention"
	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/models"
	"edupulse-backend/internal/privacy"
	"edupulse-backend/internal/session"
)

type SessionHandler struct {
	registry *session.Registry
}

func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	var req struct {
		SessionID string `json:"session_id"`
		LearnerID string `json:"learner_id"`
		CourseID  string `json:"course_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session_id is required", r))
		return
	}

	learnerID, err := uuid.Parse(req.LearnerID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid learner_id", r))
		return
	}

	state := h.registry.StartSession(req.SessionID, learnerID, tenantID, req.CourseID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": state.SessionID,
		"started_at": state.StartTime,
	})
}

// Signal ingests one validated behavioral signal into the owning actor
// and returns the fresh score and intervention decision.
func (h *SessionHandler) Signal(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var signal models.BehavioralSignal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	signal.SessionID = sessionID

	if fieldErrors := signal.Validate(); fieldErrors != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid signal", fieldErrors, r))
		return
	}
	signal.Normalize()

	result, err := h.registry.Ingest(sessionID, signal)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	summary, err := h.registry.End(sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	status, err := h.registry.Status(sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Analytics aggregates the caller's tenant from live actor state.
func (h *SessionHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	if q := r.URL.Query().Get("tenant_id"); q != "" {
		parsed, err := uuid.Parse(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid tenant_id", r))
			return
		}
		if parsed != tenantID {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Cannot read another tenant's analytics", r))
			return
		}
	}

	writeJSON(w, http.StatusOK, h.registry.Analytics(tenantID))
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *session.NotFoundError:
		writeJSON(w, http.StatusNotFound, errorResp("SESSION_NOT_FOUND", e.Message, r))
	case *intervention.NotFoundError:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", e.Message, r))
	case *intervention.ForbiddenError:
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", e.Message, r))
	case *intervention.ConflictError:
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", e.Message, r))
	case *privacy.ConsentDeniedError:
		writeJSON(w, http.StatusForbidden, errorResp("CONSENT_DENIED", e.Reason, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
