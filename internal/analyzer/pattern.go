package analyzer

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

const (
	// ModelVersion tags persisted struggle events so heuristic changes
	// can be compared against later ground truth.
	ModelVersion = "pattern-v1"

	historyWindow      = 60 * time.Minute
	trendWindow        = 20 * time.Minute
	predictionValidFor = 30 * time.Minute

	// Early-warning horizon bounds (minutes).
	minHorizon = 15
	maxHorizon = 20

	dismissalCooldown = 5 * time.Minute
	typingQuietPeriod = 10 * time.Second
)

var factorWeights = map[string]float64{
	models.SignalHoverConfusion: 0.30,
	models.SignalRapidScroll:    0.20,
	models.SignalIdleTimeout:    0.40,
	models.SignalRepeatedAccess: 0.25,
	models.SignalHelpSeeking:    0.15,
}

var recommendationsByFactor = map[string]string{
	models.SignalHoverConfusion: "Offer inline explanations for the elements the learner keeps hovering",
	models.SignalRapidScroll:    "Surface a condensed summary of the current page",
	models.SignalIdleTimeout:    "Check in with a proactive chat prompt",
	models.SignalRepeatedAccess: "Suggest an alternative resource covering the same concept",
	models.SignalHelpSeeking:    "Notify the instructor that direct help was requested",
}

// SignalHistoryReader supplies the persisted telemetry the analyzer
// works from. The analyzer never touches live actor state.
type SignalHistoryReader interface {
	ListRecentByUser(ctx context.Context, tenantID, userID uuid.UUID, courseID string, since time.Time) ([]models.BehavioralSignal, error)
}

// EventSink persists analysis results for later model evaluation.
// Implementations must be non-blocking; a lost event is acceptable.
type EventSink interface {
	EnqueueStruggleEvent(event models.StruggleEvent)
}

// DismissalReader reports the learner's most recent dismissed
// intervention, used to back off after a rejection.
type DismissalReader interface {
	LastDismissedAt(ctx context.Context, tenantID, userID uuid.UUID) (*time.Time, error)
}

// Analyzer is stateless and safe for concurrent use.
type Analyzer struct {
	signals    SignalHistoryReader
	events     EventSink
	dismissals DismissalReader
}

func New(signals SignalHistoryReader, events EventSink, dismissals DismissalReader) *Analyzer {
	return &Analyzer{signals: signals, events: events, dismissals: dismissals}
}

// Predict builds an early-warning risk estimate from the trailing hour
// of persisted signals. Any internal failure degrades to the neutral
// fallback; a broken predictor must never crash the caller or recommend
// aggressive intervention.
func (a *Analyzer) Predict(ctx context.Context, tenantID, userID uuid.UUID, courseID string) models.StrugglePrediction {
	now := time.Now().UTC()

	signals, err := a.signals.ListRecentByUser(ctx, tenantID, userID, courseID, now.Add(-historyWindow))
	if err != nil {
		log.Printf("Predict: signal history unavailable for user %s: %v", userID, err)
		return neutralPrediction(tenantID, userID, courseID, now)
	}

	prediction := buildPrediction(tenantID, userID, courseID, signals, now)

	if a.events != nil && prediction.Confidence > 0 {
		a.events.EnqueueStruggleEvent(models.StruggleEvent{
			ID:                  uuid.New(),
			TenantID:            tenantID,
			UserID:              userID,
			CourseID:            courseID,
			RiskLevel:           prediction.RiskLevel,
			Confidence:          prediction.Confidence,
			ContributingFactors: prediction.ContributingFactors,
			SignalCount:         len(signals),
			SignalWindowMinutes: int(historyWindow.Minutes()),
			ModelVersion:        ModelVersion,
			DetectedAt:          now,
			ValidUntil:          prediction.ValidUntil,
		})
	}

	return prediction
}

func neutralPrediction(tenantID, userID uuid.UUID, courseID string, now time.Time) models.StrugglePrediction {
	return models.StrugglePrediction{
		TenantID:            tenantID,
		UserID:              userID,
		CourseID:            courseID,
		RiskLevel:           0.5,
		Confidence:          0,
		InterventionUrgency: models.UrgencyNone,
		ValidUntil:          now.Add(predictionValidFor),
	}
}

func buildPrediction(tenantID, userID uuid.UUID, courseID string, signals []models.BehavioralSignal, now time.Time) models.StrugglePrediction {
	if len(signals) == 0 {
		p := neutralPrediction(tenantID, userID, courseID, now)
		p.RiskLevel = 0
		p.TimeToStruggleMinutes = maxHorizon
		return p
	}

	recentScore := windowScore(signals, now.Add(-trendWindow), now)
	priorScore := windowScore(signals, now.Add(-2*trendWindow), now.Add(-trendWindow))

	// A worsening trend pulls the estimate above the current level; an
	// improving one pulls it back toward it.
	risk := recentScore + 0.5*(recentScore-priorScore)
	risk = clamp01(risk)

	// Confidence grows with evidence; twenty signals in the window is
	// treated as a full sample.
	confidence := clamp01(float64(len(signals)) / 20)

	factors := contributingFactors(signals)

	recommendations := make([]string, 0, len(factors))
	for _, factor := range factors {
		if rec, ok := recommendationsByFactor[factor]; ok {
			recommendations = append(recommendations, rec)
		}
	}

	return models.StrugglePrediction{
		TenantID:              tenantID,
		UserID:                userID,
		CourseID:              courseID,
		RiskLevel:             risk,
		Confidence:            confidence,
		TimeToStruggleMinutes: horizonFor(risk),
		ContributingFactors:   factors,
		Recommendations:       recommendations,
		InterventionUrgency:   urgencyFor(risk),
		ValidUntil:            now.Add(predictionValidFor),
	}
}

// windowScore applies the engine's weight table to the signals that fall
// inside [from, to), with the same five-occurrence normalization cap the
// live scorer uses.
func windowScore(signals []models.BehavioralSignal, from, to time.Time) float64 {
	counts := make(map[string]int)
	for _, sig := range signals {
		if sig.Timestamp.Before(from) || !sig.Timestamp.Before(to) {
			continue
		}
		counts[sig.SignalType]++
	}

	score := 0.0
	for signalType, weight := range factorWeights {
		n := counts[signalType]
		if n > 5 {
			n = 5
		}
		score += float64(n) / 5 * weight
	}
	return clamp01(score)
}

// contributingFactors lists the weighted signal types present in the
// sample, strongest contribution first.
func contributingFactors(signals []models.BehavioralSignal) []string {
	counts := make(map[string]int)
	for _, sig := range signals {
		if _, weighted := factorWeights[sig.SignalType]; weighted {
			counts[sig.SignalType]++
		}
	}

	factors := make([]string, 0, len(counts))
	for signalType := range counts {
		factors = append(factors, signalType)
	}
	sort.Slice(factors, func(i, j int) bool {
		ci := float64(counts[factors[i]]) * factorWeights[factors[i]]
		cj := float64(counts[factors[j]]) * factorWeights[factors[j]]
		if ci != cj {
			return ci > cj
		}
		return factors[i] < factors[j]
	})
	return factors
}

// horizonFor maps risk to the actionable lead time: the higher the
// risk, the sooner the predicted struggle.
func horizonFor(risk float64) int {
	if risk >= 0.7 {
		return minHorizon
	}
	if risk >= 0.4 {
		return (minHorizon + maxHorizon) / 2
	}
	return maxHorizon
}

func urgencyFor(risk float64) string {
	switch {
	case risk > 0.8:
		return models.UrgencyHigh
	case risk > 0.6:
		return models.UrgencyMedium
	case risk > 0.4:
		return models.UrgencyLow
	default:
		return models.UrgencyNone
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
