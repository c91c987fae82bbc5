package models

import (
	"time"

	"github.com/google/uuid"
)

// LearnerSession is the state owned by one session actor. All mutation
// happens inside the actor's message loop; everything handed out of the
// actor is a copy.
type LearnerSession struct {
	SessionID             string     `json:"session_id"`
	LearnerID             uuid.UUID  `json:"learner_id"`
	TenantID              uuid.UUID  `json:"tenant_id"`
	CourseID              string     `json:"course_id,omitempty"`
	StartTime             time.Time  `json:"start_time"`
	LastActivityAt        time.Time  `json:"last_activity_at"`
	StruggleScore         float64    `json:"struggle_score"`
	InterventionTriggered bool       `json:"intervention_triggered"`
	InterventionType      string     `json:"intervention_type,omitempty"`
	EndedAt               *time.Time `json:"ended_at,omitempty"`
}

// IngestResult is the actor's reply to one signal ingestion.
type IngestResult struct {
	StruggleScore         float64 `json:"struggle_score"`
	InterventionTriggered bool    `json:"intervention_triggered"`
	InterventionType      string  `json:"intervention_type,omitempty"`
}

// SessionStatus is a point-in-time snapshot for the status endpoint.
type SessionStatus struct {
	SessionID             string  `json:"session_id"`
	DurationSeconds       int     `json:"duration_seconds"`
	SignalCount           int     `json:"signal_count"`
	StruggleScore         float64 `json:"struggle_score"`
	InterventionTriggered bool    `json:"intervention_triggered"`
}

// SessionSummary is returned when a session ends.
type SessionSummary struct {
	SessionID    string  `json:"session_id"`
	FinalScore   float64 `json:"final_score"`
	TotalSignals int     `json:"total_signals"`
}

// TenantAnalytics aggregates the live actors of one tenant.
type TenantAnalytics struct {
	TenantID               uuid.UUID `json:"tenant_id"`
	ActiveSessions         int       `json:"active_sessions"`
	AverageStruggleScore   float64   `json:"average_struggle_score"`
	InterventionsTriggered int       `json:"interventions_triggered"`
	TotalSignals           int       `json:"total_signals"`
}
