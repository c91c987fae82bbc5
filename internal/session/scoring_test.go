package session

import (
	"math"
	"testing"
	"time"

	"edupulse-backend/internal/models"
)

func makeSignals(now time.Time, spread time.Duration, types ...string) []models.BehavioralSignal {
	signals := make([]models.BehavioralSignal, len(types))
	for i, signalType := range types {
		offset := time.Duration(0)
		if len(types) > 1 {
			offset = spread * time.Duration(i) / time.Duration(len(types)-1)
		}
		signals[i] = models.BehavioralSignal{
			SignalType: signalType,
			Timestamp:  now.Add(-spread).Add(offset),
		}
	}
	return signals
}

func repeated(signalType string, n int) []string {
	types := make([]string, n)
	for i := range types {
		types[i] = signalType
	}
	return types
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeScore_Bounds(t *testing.T) {
	now := time.Now().UTC()

	// Every weighted type at its cap, all recent: worst case stays in [0,1].
	var types []string
	for _, signalType := range []string{
		models.SignalHoverConfusion, models.SignalRapidScroll, models.SignalIdleTimeout,
		models.SignalRepeatedAccess, models.SignalHelpSeeking,
	} {
		types = append(types, repeated(signalType, 10)...)
	}

	score := computeScore(makeSignals(now, 30*time.Second, types...), now)
	if score < 0 || score > 1 {
		t.Fatalf("Expected score in [0,1], got %f", score)
	}
	if score != 1 {
		t.Errorf("Expected saturated score 1.0, got %f", score)
	}
}

func TestComputeScore_MonotonicUpToCap(t *testing.T) {
	now := time.Now().UTC()

	prev := -1.0
	for n := 0; n <= 8; n++ {
		// Spread far apart so the recency boost never kicks in and only
		// the count effect is measured.
		score := computeScore(makeSignals(now, 30*time.Minute, repeated(models.SignalHoverConfusion, n)...), now)
		if score < prev {
			t.Fatalf("Score decreased from %f to %f at count %d", prev, score, n)
		}
		prev = score
	}

	atCap := computeScore(makeSignals(now, 30*time.Minute, repeated(models.SignalHoverConfusion, 5)...), now)
	beyondCap := computeScore(makeSignals(now, 30*time.Minute, repeated(models.SignalHoverConfusion, 8)...), now)
	if !almostEqual(atCap, beyondCap) {
		t.Errorf("Expected cap at 5 occurrences: %f vs %f", atCap, beyondCap)
	}
}

func TestComputeScore_HoverConfusionScenarios(t *testing.T) {
	now := time.Now().UTC()

	// Five hover-confusion signals spread over an hour: normalized count
	// 1.0, weight 0.30, no boost.
	spread := computeScore(makeSignals(now, time.Hour, repeated(models.SignalHoverConfusion, 5)...), now)
	if !almostEqual(spread, 0.30) {
		t.Errorf("Expected raw score 0.30, got %f", spread)
	}

	// Same five inside 60 seconds: more than 3 recent, so 0.30 × 1.2.
	burst := computeScore(makeSignals(now, 30*time.Second, repeated(models.SignalHoverConfusion, 5)...), now)
	if !almostEqual(burst, 0.36) {
		t.Errorf("Expected boosted score 0.36, got %f", burst)
	}
}

func TestComputeScore_ThreeIdleTimeoutsNoBoost(t *testing.T) {
	now := time.Now().UTC()

	// Exactly 3 recent signals is not "more than 3": no boost.
	score := computeScore(makeSignals(now, 10*time.Second, repeated(models.SignalIdleTimeout, 3)...), now)
	if !almostEqual(score, 0.24) {
		t.Errorf("Expected score 0.24 (0.6 × 0.40, no boost), got %f", score)
	}
}

func TestComputeScore_MixedBurstBelowThreshold(t *testing.T) {
	now := time.Now().UTC()

	types := append(repeated(models.SignalHelpSeeking, 5), repeated(models.SignalIdleTimeout, 5)...)
	score := computeScore(makeSignals(now, 50*time.Second, types...), now)

	// raw = 1×0.15 + 1×0.40 = 0.55, boosted ×1.2 = 0.66
	if !almostEqual(score, 0.66) {
		t.Errorf("Expected boosted score 0.66, got %f", score)
	}
	if score > InterventionThreshold {
		t.Errorf("Score %f should stay below the intervention threshold", score)
	}
}

func TestComputeScore_UnweightedTypesCountTowardBoost(t *testing.T) {
	now := time.Now().UTC()

	// One weighted signal plus enough clicks to push the recent count
	// past the boost floor: the clicks carry no weight but do count.
	types := append(repeated(models.SignalClick, 5), models.SignalIdleTimeout)
	boosted := computeScore(makeSignals(now, 20*time.Second, types...), now)

	if !almostEqual(boosted, (1.0/5)*0.40*1.2) {
		t.Errorf("Expected click-driven boost, got %f", boosted)
	}
}

func TestSelectInterventionType_MajorityVote(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		types    []string
		expected string
	}{
		{
			"idle timeout majority",
			[]string{models.SignalIdleTimeout, models.SignalIdleTimeout, models.SignalIdleTimeout, models.SignalClick, models.SignalClick},
			models.InterventionProactiveChat,
		},
		{
			"hover confusion majority",
			[]string{models.SignalHoverConfusion, models.SignalHoverConfusion, models.SignalHoverConfusion, models.SignalRapidScroll, models.SignalRapidScroll},
			models.InterventionTooltipHelp,
		},
		{
			"help seeking majority",
			[]string{models.SignalHelpSeeking, models.SignalHelpSeeking, models.SignalHelpSeeking, models.SignalHelpSeeking, models.SignalIdleTimeout},
			models.InterventionInstructorNotify,
		},
		{
			"unmapped majority falls back to proactive chat",
			[]string{models.SignalClick, models.SignalClick, models.SignalClick, models.SignalHoverConfusion, models.SignalRapidScroll},
			models.InterventionProactiveChat,
		},
		{
			"only the five most recent count",
			append(repeated(models.SignalHelpSeeking, 10), repeated(models.SignalRapidScroll, 5)...),
			models.InterventionContentSummary,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := selectInterventionType(makeSignals(now, time.Minute, tc.types...))
			if got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}
