package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission types gated by PrivacyConsent.
const (
	PermissionPerformance          = "performance"
	PermissionPredictive           = "predictive"
	PermissionBenchmarkComparison  = "benchmark-comparison"
	PermissionInstructorVisibility = "instructor-visibility"
)

// PrivacyConsent holds one student's analytics grants, optionally scoped
// to a course. A withdrawal timestamp voids every grant regardless of
// the stored booleans.
type PrivacyConsent struct {
	ID                    uuid.UUID  `json:"id"`
	TenantID              uuid.UUID  `json:"tenant_id"`
	StudentID             uuid.UUID  `json:"student_id"`
	CourseID              string     `json:"course_id,omitempty"`
	PerformanceAnalytics  bool       `json:"performance_analytics"`
	PredictiveAnalytics   bool       `json:"predictive_analytics"`
	BenchmarkComparison   bool       `json:"benchmark_comparison"`
	InstructorVisibility  bool       `json:"instructor_visibility"`
	RetentionDays         int        `json:"retention_days"`
	AnonymizationRequired bool       `json:"anonymization_required"`
	WithdrawnAt           *time.Time `json:"withdrawn_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Grants reports whether the consent currently allows the permission.
// Withdrawal wins over every stored flag.
func (c *PrivacyConsent) Grants(permission string, now time.Time) bool {
	if c.WithdrawnAt != nil && !now.Before(*c.WithdrawnAt) {
		return false
	}
	switch permission {
	case PermissionPerformance:
		return c.PerformanceAnalytics
	case PermissionPredictive:
		return c.PredictiveAnalytics
	case PermissionBenchmarkComparison:
		return c.BenchmarkComparison
	case PermissionInstructorVisibility:
		return c.InstructorVisibility
	default:
		return false
	}
}

// AuditLogEntry is one append-only record of an analytics data access,
// written for allowed and denied operations alike.
type AuditLogEntry struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ActorID      string    `json:"actor_id"`
	ActorType    string    `json:"actor_type"`
	Operation    string    `json:"operation"`
	Resource     string    `json:"resource"`
	Allowed      bool      `json:"allowed"`
	DenialReason string    `json:"denial_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
