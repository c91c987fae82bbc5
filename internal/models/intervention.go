package models

import (
	"time"

	"github.com/google/uuid"
)

// Intervention types selected by the session actor's majority vote.
const (
	InterventionTooltipHelp        = "tooltip-help"
	InterventionContentSummary     = "content-summary"
	InterventionProactiveChat      = "proactive-chat"
	InterventionResourceSuggestion = "resource-suggestion"
	InterventionInstructorNotify   = "instructor-notification"
)

// User responses recorded at the end of an intervention lifecycle.
const (
	ResponseAccepted  = "accepted"
	ResponseDismissed = "dismissed"
	ResponseIgnored   = "ignored"
	ResponseTimeout   = "timeout"
)

// InterventionRecord is the audit trail of one intervention: created on
// trigger, updated exactly once per lifecycle stage, never deleted.
type InterventionRecord struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           uuid.UUID  `json:"tenant_id"`
	UserID             uuid.UUID  `json:"user_id"`
	SessionID          string     `json:"session_id"`
	InterventionType   string     `json:"intervention_type"`
	Message            string     `json:"message"`
	UrgencyLevel       string     `json:"urgency_level"`
	TriggeredAt        time.Time  `json:"triggered_at"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at,omitempty"`
	DismissedAt        *time.Time `json:"dismissed_at,omitempty"`
	UserResponse       string     `json:"user_response,omitempty"`
	EffectivenessScore float64    `json:"effectiveness_score"`
}

// Dismissible reports whether the learner may dismiss this intervention.
// High-urgency interventions stay on screen.
func (r *InterventionRecord) Dismissible() bool {
	return r.UrgencyLevel != UrgencyHigh
}

// InterventionOutcome carries the engagement data used for effectiveness
// scoring once the learner has responded.
type InterventionOutcome struct {
	Response          string `json:"response"`
	EngagementSeconds int    `json:"engagement_seconds"`
	Rating            int    `json:"rating"` // 0 = not rated, else 1-5
	AskedFollowUp     bool   `json:"asked_follow_up"`
	FoundHelpful      bool   `json:"found_helpful"`
}
