package models

import (
	"time"

	"github.com/google/uuid"
)

// StruggleEvent is a persisted point-in-time risk assessment. Immutable
// once written except for the outcome fields, which are attached later
// as ground truth becomes available.
type StruggleEvent struct {
	ID                  uuid.UUID `json:"id"`
	TenantID            uuid.UUID `json:"tenant_id"`
	UserID              uuid.UUID `json:"user_id"`
	CourseID            string    `json:"course_id,omitempty"`
	RiskLevel           float64   `json:"risk_level"`
	Confidence          float64   `json:"confidence"`
	ContributingFactors []string  `json:"contributing_factors"`
	SignalCount         int       `json:"signal_count"`
	SignalWindowMinutes int       `json:"signal_window_minutes"`
	ModelVersion        string    `json:"model_version"`
	DetectedAt          time.Time `json:"detected_at"`
	ValidUntil          time.Time `json:"valid_until"`

	// Outcome fields, filled in asynchronously.
	InterventionTriggered  *bool `json:"intervention_triggered,omitempty"`
	InterventionEffective  *bool `json:"intervention_effective,omitempty"`
	ActualStruggleOccurred *bool `json:"actual_struggle_occurred,omitempty"`
}

// Intervention urgency levels.
const (
	UrgencyNone   = "none"
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// StrugglePrediction is the analyzer's early-warning estimate.
type StrugglePrediction struct {
	TenantID              uuid.UUID `json:"tenant_id"`
	UserID                uuid.UUID `json:"user_id"`
	CourseID              string    `json:"course_id,omitempty"`
	RiskLevel             float64   `json:"risk_level"`
	Confidence            float64   `json:"confidence"`
	TimeToStruggleMinutes int       `json:"time_to_struggle_minutes"`
	ContributingFactors   []string  `json:"contributing_factors"`
	Recommendations       []string  `json:"recommendations"`
	InterventionUrgency   string    `json:"intervention_urgency"`
	ValidUntil            time.Time `json:"valid_until"`
}

// RealTimeAnalysis gates whether right now is a good moment to interrupt.
type RealTimeAnalysis struct {
	CognitiveLoad             float64 `json:"cognitive_load"`
	AttentionLevel            float64 `json:"attention_level"`
	OptimalInterventionTiming bool    `json:"optimal_intervention_timing"`
}
