package privacy

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

// ConsentDeniedError is the typed denial every analytics entry point
// returns when the gate refuses access. It always carries a reason the
// caller may show ("consent withdrawn", never a stack trace).
type ConsentDeniedError struct{ Reason string }

func (e *ConsentDeniedError) Error() string { return e.Reason }

// Accessor identifies who is asking, for the audit trail.
type Accessor struct {
	ID   string
	Type string // student, instructor, system
}

// ConsentStore fetches the governing consent record. A nil record with
// nil error means no consent is on file.
type ConsentStore interface {
	Get(ctx context.Context, tenantID, studentID uuid.UUID, courseID string) (*models.PrivacyConsent, error)
}

// AuditSink appends access decisions. Implementations must not block
// the caller; a denial is still a denial if the audit write lags.
type AuditSink interface {
	EnqueueAudit(entry models.AuditLogEntry)
}

// Gate is the single authorization point for every analytics operation
// touching student data. It fails closed: if consent cannot be
// evaluated, access is denied, and every decision is audited either way.
type Gate struct {
	consents ConsentStore
	audit    AuditSink
}

func NewGate(consents ConsentStore, audit AuditSink) *Gate {
	return &Gate{consents: consents, audit: audit}
}

// Authorize returns nil when the student's consent currently grants the
// permission for this operation, or a ConsentDeniedError otherwise.
func (g *Gate) Authorize(ctx context.Context, tenantID uuid.UUID, accessor Accessor, studentID uuid.UUID, courseID, permission, operation, resource string) error {
	now := time.Now().UTC()

	consent, err := g.consents.Get(ctx, tenantID, studentID, courseID)
	if err != nil {
		// Fail closed: an unevaluable consent check is a denial, never
		// an allow.
		log.Printf("Consent lookup failed for student %s: %v", studentID, err)
		g.record(tenantID, accessor, operation, resource, false, "consent could not be evaluated")
		return &ConsentDeniedError{Reason: "consent could not be evaluated"}
	}

	if consent == nil {
		g.record(tenantID, accessor, operation, resource, false, "no consent on file")
		return &ConsentDeniedError{Reason: "no consent on file"}
	}

	if consent.WithdrawnAt != nil && !now.Before(*consent.WithdrawnAt) {
		g.record(tenantID, accessor, operation, resource, false, "consent withdrawn")
		return &ConsentDeniedError{Reason: "consent withdrawn"}
	}

	if !consent.Grants(permission, now) {
		g.record(tenantID, accessor, operation, resource, false, "permission "+permission+" not granted")
		return &ConsentDeniedError{Reason: "permission " + permission + " not granted"}
	}

	g.record(tenantID, accessor, operation, resource, true, "")
	return nil
}

func (g *Gate) record(tenantID uuid.UUID, accessor Accessor, operation, resource string, allowed bool, reason string) {
	if g.audit == nil {
		return
	}
	g.audit.EnqueueAudit(models.AuditLogEntry{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ActorID:      accessor.ID,
		ActorType:    accessor.Type,
		Operation:    operation,
		Resource:     resource,
		Allowed:      allowed,
		DenialReason: reason,
		CreatedAt:    time.Now().UTC(),
	})
}
