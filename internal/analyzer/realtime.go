package analyzer

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

// liveWindow bounds how far back the timing gate looks when judging the
// learner's current state.
const liveWindow = 2 * time.Minute

// OptimalInterventionTiming loads the learner's last couple of minutes
// of persisted signals and runs the timing gate over them. The
// dispatcher consults this before delivering a non-urgent intervention.
func (a *Analyzer) OptimalInterventionTiming(ctx context.Context, tenantID, userID uuid.UUID) bool {
	since := time.Now().UTC().Add(-liveWindow)
	signals, err := a.signals.ListRecentByUser(ctx, tenantID, userID, "", since)
	if err != nil {
		// No view of the learner's current state: hold off.
		log.Printf("OptimalInterventionTiming: signal history unavailable for user %s: %v", userID, err)
		return false
	}
	return a.AnalyzeRealTimeBehavioralSignals(ctx, tenantID, userID, signals).OptimalInterventionTiming
}

// AnalyzeRealTimeBehavioralSignals estimates the learner's current
// cognitive load and attention from a short burst of live signals, and
// gates whether this is an acceptable moment to interrupt. Interrupting
// mid-interaction or shortly after a dismissed suggestion is never
// optimal, whatever the risk level says.
func (a *Analyzer) AnalyzeRealTimeBehavioralSignals(ctx context.Context, tenantID, userID uuid.UUID, signals []models.BehavioralSignal) models.RealTimeAnalysis {
	now := time.Now().UTC()

	load := cognitiveLoad(signals)
	attention := attentionLevel(signals)

	timing := true
	if interactingNow(signals, now) {
		timing = false
	}
	if timing && a.dismissals != nil {
		dismissedAt, err := a.dismissals.LastDismissedAt(ctx, tenantID, userID)
		if err != nil {
			// Unknown dismissal history: hold off rather than risk a
			// back-to-back interruption.
			log.Printf("AnalyzeRealTimeBehavioralSignals: dismissal lookup failed for user %s: %v", userID, err)
			timing = false
		} else if dismissedAt != nil && now.Sub(*dismissedAt) < dismissalCooldown {
			timing = false
		}
	}

	return models.RealTimeAnalysis{
		CognitiveLoad:             load,
		AttentionLevel:            attention,
		OptimalInterventionTiming: timing,
	}
}

// cognitiveLoad rises with confusion-indicating signal density and with
// long dwell times on single elements.
func cognitiveLoad(signals []models.BehavioralSignal) float64 {
	if len(signals) == 0 {
		return 0
	}

	loadBearing := 0
	var totalDurationMs int
	for _, sig := range signals {
		switch sig.SignalType {
		case models.SignalHoverConfusion, models.SignalRapidScroll, models.SignalRepeatedAccess, models.SignalFocusChange:
			loadBearing++
		}
		totalDurationMs += sig.DurationMs
	}

	density := float64(loadBearing) / float64(len(signals))
	meanDurationMs := float64(totalDurationMs) / float64(len(signals))
	dwell := clamp01(meanDurationMs / float64(models.MaxSignalDurationMs/10))

	return clamp01(0.7*density + 0.3*dwell)
}

// attentionLevel falls with idle and away-from-page signals.
func attentionLevel(signals []models.BehavioralSignal) float64 {
	if len(signals) == 0 {
		return 1
	}

	away := 0
	for _, sig := range signals {
		switch sig.SignalType {
		case models.SignalIdleTimeout, models.SignalPageLeave:
			away++
		}
	}
	return clamp01(1 - float64(away)/float64(len(signals)))
}

// interactingNow reports whether the learner produced an active input
// signal within the quiet period, meaning an interruption would land
// mid-interaction.
func interactingNow(signals []models.BehavioralSignal, now time.Time) bool {
	cutoff := now.Add(-typingQuietPeriod)
	for _, sig := range signals {
		if sig.Timestamp.Before(cutoff) {
			continue
		}
		switch sig.SignalType {
		case models.SignalClick, models.SignalQuizInteraction:
			return true
		}
	}
	return false
}
