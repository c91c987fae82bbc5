package intervention

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

const (
	// Effectiveness adjustments are bounded, then damped, so a single
	// outcome can only nudge the running score.
	maxRawAdjustment     = 0.2
	effectivenessDamping = 0.1
	initialEffectiveness = 0.5

	engagedThreshold = 30 * time.Second
)

var messageByType = map[string]string{
	models.InterventionTooltipHelp:        "It looks like this part is tricky. Want a quick explanation of what you're hovering over?",
	models.InterventionContentSummary:     "Moving fast through this page? Here's a short summary of the key points.",
	models.InterventionProactiveChat:      "Stuck on something? I'm here if you want to talk it through.",
	models.InterventionResourceSuggestion: "You've revisited this a few times. Another resource might explain it differently.",
	models.InterventionInstructorNotify:   "Your instructor has been notified that you could use a hand here.",
}

// A ForbiddenError is returned when a lifecycle transition is not
// permitted, e.g. dismissing a high-urgency intervention.
type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// A ConflictError is returned when a one-shot transition is attempted a
// second time, e.g. recording a response on a record that has one.
type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

// RecordStore persists intervention records and their lifecycle
// transitions. Records are never deleted.
type RecordStore interface {
	Create(ctx context.Context, record *models.InterventionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.InterventionRecord, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAcknowledged(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkDismissed(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordOutcome(ctx context.Context, id uuid.UUID, response string, effectiveness float64) error
}

// DeliveryChannel pushes an intervention to the learner's client.
type DeliveryChannel interface {
	Deliver(record models.InterventionRecord) error
}

// TimingGate reports whether now is a reasonable moment to interrupt
// the learner. Consulted before delivery; the record is created either
// way so a deferred intervention surfaces on the client's next sync.
type TimingGate interface {
	OptimalInterventionTiming(ctx context.Context, tenantID, userID uuid.UUID) bool
}

// GroundTruthSink receives the learner's reaction so it can be stamped
// onto the risk assessment that led to the intervention.
type GroundTruthSink interface {
	AttachOutcome(ctx context.Context, tenantID, userID uuid.UUID, triggered bool, effective, actualStruggle *bool) error
}

// Dispatcher turns intervention decisions into delivery attempts and an
// audit trail. Safe for concurrent use; all state lives in the store.
type Dispatcher struct {
	store       RecordStore
	delivery    DeliveryChannel
	timing      TimingGate
	groundTruth GroundTruthSink
}

// NewDispatcher wires the dispatcher. timing and groundTruth may be nil;
// delivery then happens unconditionally and reactions are not echoed
// back onto risk assessments.
func NewDispatcher(store RecordStore, delivery DeliveryChannel, timing TimingGate, groundTruth GroundTruthSink) *Dispatcher {
	return &Dispatcher{store: store, delivery: delivery, timing: timing, groundTruth: groundTruth}
}

// Trigger creates the record and attempts delivery. Called from a
// session actor's side-effect goroutine; storage failures are logged
// and swallowed so scoring is never coupled to them.
func (d *Dispatcher) Trigger(session models.LearnerSession, interventionType string, score float64) {
	record := models.InterventionRecord{
		ID:                 uuid.New(),
		TenantID:           session.TenantID,
		UserID:             session.LearnerID,
		SessionID:          session.SessionID,
		InterventionType:   interventionType,
		Message:            messageByType[interventionType],
		UrgencyLevel:       urgencyForScore(score),
		TriggeredAt:        time.Now().UTC(),
		EffectivenessScore: initialEffectiveness,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.store.Create(ctx, &record); err != nil {
		log.Printf("Intervention record write failed for session %s: %v", session.SessionID, err)
		return
	}

	if d.delivery == nil {
		return
	}
	// High urgency always goes out; everything else waits for a calm
	// moment and stays queued in the store until then.
	if d.timing != nil && record.UrgencyLevel != models.UrgencyHigh &&
		!d.timing.OptimalInterventionTiming(ctx, record.TenantID, record.UserID) {
		log.Printf("Intervention %s deferred: learner %s is mid-interaction", record.ID, record.UserID)
		return
	}
	if err := d.delivery.Deliver(record); err != nil {
		log.Printf("Intervention delivery failed for session %s: %v", session.SessionID, err)
		return
	}
	if err := d.store.MarkDelivered(ctx, record.ID, time.Now().UTC()); err != nil {
		log.Printf("Intervention delivered-at write failed for %s: %v", record.ID, err)
	}
}

// urgencyForScore maps how far past the trigger threshold the learner
// is onto delivery urgency.
func urgencyForScore(score float64) string {
	switch {
	case score >= 0.9:
		return models.UrgencyHigh
	case score >= 0.8:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// getOwned fetches a record scoped to the caller's tenant. A record in
// another tenant is indistinguishable from a missing one.
func (d *Dispatcher) getOwned(ctx context.Context, tenantID, id uuid.UUID) (*models.InterventionRecord, error) {
	record, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, &NotFoundError{Message: "intervention not found"}
	}
	if record.TenantID != tenantID {
		return nil, &NotFoundError{Message: "intervention not found"}
	}
	return record, nil
}

// MarkDelivered records an out-of-band delivery confirmation.
func (d *Dispatcher) MarkDelivered(ctx context.Context, tenantID, id uuid.UUID) error {
	if _, err := d.getOwned(ctx, tenantID, id); err != nil {
		return err
	}
	return d.store.MarkDelivered(ctx, id, time.Now().UTC())
}

func (d *Dispatcher) Acknowledge(ctx context.Context, tenantID, callerID, id uuid.UUID) error {
	record, err := d.getOwned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if record.UserID != callerID {
		return &ForbiddenError{Message: "only the intervention's learner can acknowledge it"}
	}
	return d.store.MarkAcknowledged(ctx, id, time.Now().UTC())
}

// Dismiss records a learner dismissal. High-urgency interventions are
// not user-dismissible.
func (d *Dispatcher) Dismiss(ctx context.Context, tenantID, callerID, id uuid.UUID) error {
	record, err := d.getOwned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if record.UserID != callerID {
		return &ForbiddenError{Message: "only the intervention's learner can dismiss it"}
	}
	if !record.Dismissible() {
		return &ForbiddenError{Message: "high-urgency interventions cannot be dismissed"}
	}
	return d.store.MarkDismissed(ctx, id, time.Now().UTC())
}

// RecordOutcome folds the learner's response into the record's running
// effectiveness score, then stamps the reaction onto the originating
// risk assessment. One response per record.
func (d *Dispatcher) RecordOutcome(ctx context.Context, tenantID, callerID, id uuid.UUID, outcome models.InterventionOutcome) (*models.InterventionRecord, error) {
	record, err := d.getOwned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != callerID {
		return nil, &ForbiddenError{Message: "only the intervention's learner can record a response"}
	}
	if record.UserResponse != "" {
		return nil, &ConflictError{Message: "a response has already been recorded for this intervention"}
	}

	updated := applyOutcome(record.EffectivenessScore, outcome)
	if err := d.store.RecordOutcome(ctx, id, outcome.Response, updated); err != nil {
		return nil, err
	}
	d.attachGroundTruth(ctx, record, outcome)

	record.UserResponse = outcome.Response
	record.EffectivenessScore = updated
	return record, nil
}

// attachGroundTruth maps the reaction onto the outcome fields of the
// learner's latest struggle event. Best effort; the response itself is
// already persisted.
func (d *Dispatcher) attachGroundTruth(ctx context.Context, record *models.InterventionRecord, outcome models.InterventionOutcome) {
	if d.groundTruth == nil {
		return
	}

	engaged := outcome.Response == models.ResponseAccepted || outcome.FoundHelpful
	effective := engaged

	// Engagement confirms the struggle was real; an explicit dismissal
	// says it wasn't. Ignored/timeout tells us nothing.
	var actual *bool
	switch {
	case engaged || outcome.AskedFollowUp:
		actual = boolPtr(true)
	case outcome.Response == models.ResponseDismissed:
		actual = boolPtr(false)
	}

	if err := d.groundTruth.AttachOutcome(ctx, record.TenantID, record.UserID, true, &effective, actual); err != nil {
		log.Printf("Outcome attach failed for intervention %s: %v", record.ID, err)
	}
}

func boolPtr(b bool) *bool { return &b }

// applyOutcome combines the engagement evidence into a bounded raw
// adjustment, damps it, and clamps the result back into [0,1].
func applyOutcome(current float64, outcome models.InterventionOutcome) float64 {
	raw := 0.0

	switch outcome.Response {
	case models.ResponseAccepted:
		raw += 0.1
	case models.ResponseDismissed:
		raw -= 0.1
	case models.ResponseIgnored, models.ResponseTimeout:
		raw -= 0.05
	}

	if time.Duration(outcome.EngagementSeconds)*time.Second >= engagedThreshold {
		raw += 0.05
	}
	if outcome.Rating > 0 {
		raw += float64(outcome.Rating-3) * 0.05
	}
	if outcome.AskedFollowUp {
		raw += 0.05
	}
	if outcome.FoundHelpful {
		raw += 0.05
	}

	if raw > maxRawAdjustment {
		raw = maxRawAdjustment
	}
	if raw < -maxRawAdjustment {
		raw = -maxRawAdjustment
	}

	score := current + raw*effectivenessDamping
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
