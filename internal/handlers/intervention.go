package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"edupulse-backend/internal/intervention"
	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/models"
)

type InterventionHandler struct {
	dispatcher *intervention.Dispatcher
}

func NewInterventionHandler(dispatcher *intervention.Dispatcher) *InterventionHandler {
	return &InterventionHandler{dispatcher: dispatcher}
}

func (h *InterventionHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid intervention ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func (h *InterventionHandler) Delivered(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.MarkDelivered(r.Context(), middleware.GetTenantID(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Delivery recorded"})
}

func (h *InterventionHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.Acknowledge(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Acknowledgement recorded"})
}

func (h *InterventionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.dispatcher.Dismiss(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Dismissal recorded"})
}

// Response records the final outcome and folds it into the running
// effectiveness score.
func (h *InterventionHandler) Response(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var outcome models.InterventionOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	switch outcome.Response {
	case models.ResponseAccepted, models.ResponseDismissed, models.ResponseIgnored, models.ResponseTimeout:
	default:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "response must be accepted, dismissed, ignored, or timeout", r))
		return
	}

	record, err := h.dispatcher.RecordOutcome(r.Context(), middleware.GetTenantID(r.Context()), middleware.GetUserID(r.Context()), id, outcome)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}
