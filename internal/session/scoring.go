package session

import (
	"time"

	"edupulse-backend/internal/models"
)

// Scoring constants. The weights and caps are fixed product values; the
// score must be reproducible across deployments, so they are not
// configurable.
const (
	NormalizationCap      = 5
	RecencyWindow         = 60 * time.Second
	RecencyBoostFactor    = 1.2
	RecencyBoostMinCount  = 3 // boost applies when strictly more than this arrived in the window
	InterventionThreshold = 0.7
	VoteWindowSize        = 5
)

var signalWeights = map[string]float64{
	models.SignalHoverConfusion: 0.30,
	models.SignalRapidScroll:    0.20,
	models.SignalIdleTimeout:    0.40,
	models.SignalRepeatedAccess: 0.25,
	models.SignalHelpSeeking:    0.15,
}

var interventionByDominantSignal = map[string]string{
	models.SignalHoverConfusion: models.InterventionTooltipHelp,
	models.SignalRapidScroll:    models.InterventionContentSummary,
	models.SignalIdleTimeout:    models.InterventionProactiveChat,
	models.SignalRepeatedAccess: models.InterventionResourceSuggestion,
	models.SignalHelpSeeking:    models.InterventionInstructorNotify,
}

// computeScore derives the struggle score from the full signal history.
// Per-type counts are capped at NormalizationCap and weighted; the raw
// sum is amplified by 1.2 when more than RecencyBoostMinCount signals of
// any type arrived within the trailing window. The result replaces the
// previous score entirely.
func computeScore(signals []models.BehavioralSignal, now time.Time) float64 {
	counts := make(map[string]int)
	recent := 0
	cutoff := now.Add(-RecencyWindow)

	for _, sig := range signals {
		counts[sig.SignalType]++
		if !sig.Timestamp.Before(cutoff) {
			recent++
		}
	}

	raw := 0.0
	for signalType, weight := range signalWeights {
		n := counts[signalType]
		if n > NormalizationCap {
			n = NormalizationCap
		}
		raw += float64(n) / NormalizationCap * weight
	}

	if recent > RecencyBoostMinCount {
		raw *= RecencyBoostFactor
	}
	if raw > 1 {
		raw = 1
	}
	return raw
}

// selectInterventionType runs a majority vote over the most recent
// VoteWindowSize signal types. Ties break toward the type seen latest;
// types outside the fixed mapping fall through to proactive chat.
func selectInterventionType(signals []models.BehavioralSignal) string {
	start := len(signals) - VoteWindowSize
	if start < 0 {
		start = 0
	}
	window := signals[start:]

	votes := make(map[string]int)
	for _, sig := range window {
		votes[sig.SignalType]++
	}

	winner := ""
	winnerVotes := 0
	// Walk newest-first so a tie resolves to the most recent type.
	for i := len(window) - 1; i >= 0; i-- {
		signalType := window[i].SignalType
		if votes[signalType] > winnerVotes {
			winner = signalType
			winnerVotes = votes[signalType]
		}
	}

	if intervention, ok := interventionByDominantSignal[winner]; ok {
		return intervention
	}
	return models.InterventionProactiveChat
}
