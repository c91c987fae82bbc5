package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

type fakeHistory struct {
	signals []models.BehavioralSignal
	err     error
}

func (f *fakeHistory) ListRecentByUser(ctx context.Context, tenantID, userID uuid.UUID, courseID string, since time.Time) ([]models.BehavioralSignal, error) {
	return f.signals, f.err
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []models.StruggleEvent
}

func (f *fakeEventSink) EnqueueStruggleEvent(event models.StruggleEvent) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeEventSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeDismissals struct {
	dismissedAt *time.Time
	err         error
}

func (f *fakeDismissals) LastDismissedAt(ctx context.Context, tenantID, userID uuid.UUID) (*time.Time, error) {
	return f.dismissedAt, f.err
}

func burst(now time.Time, age time.Duration, types ...string) []models.BehavioralSignal {
	signals := make([]models.BehavioralSignal, len(types))
	for i, signalType := range types {
		signals[i] = models.BehavioralSignal{
			SignalType: signalType,
			Timestamp:  now.Add(-age),
		}
	}
	return signals
}

func TestPredict_NeutralFallbackOnReaderError(t *testing.T) {
	sink := &fakeEventSink{}
	a := New(&fakeHistory{err: errors.New("connection refused")}, sink, nil)

	p := a.Predict(context.Background(), uuid.New(), uuid.New(), "course-1")
	if p.RiskLevel != 0.5 {
		t.Errorf("Expected neutral risk 0.5, got %f", p.RiskLevel)
	}
	if p.Confidence != 0 {
		t.Errorf("Expected zero confidence, got %f", p.Confidence)
	}
	if p.InterventionUrgency != models.UrgencyNone {
		t.Errorf("Expected no urgency, got %s", p.InterventionUrgency)
	}
	if sink.count() != 0 {
		t.Errorf("Expected no persisted event for a fallback prediction, got %d", sink.count())
	}
}

func TestPredict_NoHistoryMeansNoRisk(t *testing.T) {
	a := New(&fakeHistory{}, nil, nil)

	p := a.Predict(context.Background(), uuid.New(), uuid.New(), "course-1")
	if p.RiskLevel != 0 {
		t.Errorf("Expected zero risk with no signals, got %f", p.RiskLevel)
	}
	if p.TimeToStruggleMinutes != maxHorizon {
		t.Errorf("Expected maximum horizon, got %d", p.TimeToStruggleMinutes)
	}
}

func TestPredict_WorseningTrendRaisesRisk(t *testing.T) {
	now := time.Now().UTC()

	// All struggle signals in the recent window, none in the prior one.
	worsening := append(
		burst(now, 5*time.Minute, models.SignalIdleTimeout, models.SignalIdleTimeout, models.SignalIdleTimeout),
		burst(now, 8*time.Minute, models.SignalHoverConfusion, models.SignalHoverConfusion)...,
	)
	// The same signals, but all in the prior window.
	improving := append(
		burst(now, 25*time.Minute, models.SignalIdleTimeout, models.SignalIdleTimeout, models.SignalIdleTimeout),
		burst(now, 30*time.Minute, models.SignalHoverConfusion, models.SignalHoverConfusion)...,
	)

	tenantID, userID := uuid.New(), uuid.New()
	risky := New(&fakeHistory{signals: worsening}, nil, nil).Predict(context.Background(), tenantID, userID, "c")
	calm := New(&fakeHistory{signals: improving}, nil, nil).Predict(context.Background(), tenantID, userID, "c")

	if risky.RiskLevel <= calm.RiskLevel {
		t.Errorf("Expected worsening trend %f to outrank improving trend %f", risky.RiskLevel, calm.RiskLevel)
	}
	if risky.RiskLevel < 0 || risky.RiskLevel > 1 {
		t.Errorf("Risk out of bounds: %f", risky.RiskLevel)
	}
}

func TestPredict_PersistsEventWhenConfident(t *testing.T) {
	now := time.Now().UTC()
	sink := &fakeEventSink{}
	history := &fakeHistory{signals: burst(now, 5*time.Minute,
		models.SignalIdleTimeout, models.SignalIdleTimeout, models.SignalHelpSeeking)}

	New(history, sink, nil).Predict(context.Background(), uuid.New(), uuid.New(), "course-1")
	if sink.count() != 1 {
		t.Fatalf("Expected 1 persisted struggle event, got %d", sink.count())
	}
	event := sink.events[0]
	if event.ModelVersion != ModelVersion {
		t.Errorf("Expected model version %s, got %s", ModelVersion, event.ModelVersion)
	}
	if event.SignalCount != 3 {
		t.Errorf("Expected 3 signals recorded, got %d", event.SignalCount)
	}
}

func TestContributingFactors_OrderedByContribution(t *testing.T) {
	now := time.Now().UTC()

	// 2× idle-timeout (0.80) beats 2× hover-confusion (0.60) beats
	// 1× help-seeking (0.15); clicks carry no weight and never appear.
	signals := burst(now, time.Minute,
		models.SignalHoverConfusion, models.SignalHoverConfusion,
		models.SignalIdleTimeout, models.SignalIdleTimeout,
		models.SignalHelpSeeking,
		models.SignalClick, models.SignalClick,
	)

	factors := contributingFactors(signals)
	expected := []string{models.SignalIdleTimeout, models.SignalHoverConfusion, models.SignalHelpSeeking}
	if len(factors) != len(expected) {
		t.Fatalf("Expected %d factors, got %v", len(expected), factors)
	}
	for i := range expected {
		if factors[i] != expected[i] {
			t.Errorf("Factor %d: expected %s, got %s", i, expected[i], factors[i])
		}
	}
}

func TestHorizonFor_StaysInsideBounds(t *testing.T) {
	for _, risk := range []float64{0, 0.2, 0.4, 0.5, 0.7, 0.9, 1} {
		h := horizonFor(risk)
		if h < minHorizon || h > maxHorizon {
			t.Errorf("Horizon %d for risk %f outside [%d, %d]", h, risk, minHorizon, maxHorizon)
		}
	}
	if horizonFor(0.9) >= horizonFor(0.1) {
		t.Error("Expected higher risk to shorten the horizon")
	}
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		risk     float64
		expected string
	}{
		{0.95, models.UrgencyHigh},
		{0.7, models.UrgencyMedium},
		{0.5, models.UrgencyLow},
		{0.3, models.UrgencyNone},
	}
	for _, tc := range tests {
		if got := urgencyFor(tc.risk); got != tc.expected {
			t.Errorf("urgencyFor(%f): expected %s, got %s", tc.risk, tc.expected, got)
		}
	}
}

func TestRealTime_TimingBlockedWhileInteracting(t *testing.T) {
	now := time.Now().UTC()
	a := New(&fakeHistory{}, nil, &fakeDismissals{})

	active := burst(now, 2*time.Second, models.SignalClick)
	result := a.AnalyzeRealTimeBehavioralSignals(context.Background(), uuid.New(), uuid.New(), active)
	if result.OptimalInterventionTiming {
		t.Error("Expected timing blocked during active interaction")
	}

	idle := burst(now, 30*time.Second, models.SignalClick)
	result = a.AnalyzeRealTimeBehavioralSignals(context.Background(), uuid.New(), uuid.New(), idle)
	if !result.OptimalInterventionTiming {
		t.Error("Expected timing open once the quiet period has passed")
	}
}

func TestRealTime_TimingBlockedAfterRecentDismissal(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-2 * time.Minute)
	stale := now.Add(-time.Hour)

	tests := []struct {
		name        string
		dismissals  *fakeDismissals
		expectOpen  bool
	}{
		{"recent dismissal", &fakeDismissals{dismissedAt: &recent}, false},
		{"old dismissal", &fakeDismissals{dismissedAt: &stale}, true},
		{"no dismissal on record", &fakeDismissals{}, true},
		{"lookup failure holds off", &fakeDismissals{err: errors.New("timeout")}, false},
	}

	signals := burst(now, time.Minute, models.SignalIdleTimeout)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(&fakeHistory{}, nil, tc.dismissals)
			result := a.AnalyzeRealTimeBehavioralSignals(context.Background(), uuid.New(), uuid.New(), signals)
			if result.OptimalInterventionTiming != tc.expectOpen {
				t.Errorf("Expected timing open=%v, got %v", tc.expectOpen, result.OptimalInterventionTiming)
			}
		})
	}
}

func TestOptimalInterventionTiming_UsesPersistedHistory(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name       string
		history    *fakeHistory
		expectOpen bool
	}{
		{"calm learner", &fakeHistory{signals: burst(now, time.Minute, models.SignalIdleTimeout)}, true},
		{"mid-interaction", &fakeHistory{signals: burst(now, 2*time.Second, models.SignalQuizInteraction)}, false},
		{"history unavailable holds off", &fakeHistory{err: errors.New("connection refused")}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := New(tc.history, nil, &fakeDismissals{})
			open := a.OptimalInterventionTiming(context.Background(), uuid.New(), uuid.New())
			if open != tc.expectOpen {
				t.Errorf("Expected open=%v, got %v", tc.expectOpen, open)
			}
		})
	}
}

func TestCognitiveLoadAndAttention(t *testing.T) {
	now := time.Now().UTC()

	if load := cognitiveLoad(nil); load != 0 {
		t.Errorf("Expected zero load with no signals, got %f", load)
	}
	if attention := attentionLevel(nil); attention != 1 {
		t.Errorf("Expected full attention with no signals, got %f", attention)
	}

	confused := burst(now, time.Minute,
		models.SignalHoverConfusion, models.SignalRapidScroll, models.SignalRepeatedAccess)
	relaxed := burst(now, time.Minute,
		models.SignalClick, models.SignalClick, models.SignalClick)
	if cognitiveLoad(confused) <= cognitiveLoad(relaxed) {
		t.Error("Expected confusion signals to raise cognitive load")
	}

	away := burst(now, time.Minute,
		models.SignalIdleTimeout, models.SignalPageLeave, models.SignalClick)
	if attentionLevel(away) >= attentionLevel(relaxed) {
		t.Error("Expected idle and page-leave signals to lower attention")
	}

	for _, signals := range [][]models.BehavioralSignal{confused, relaxed, away} {
		if l := cognitiveLoad(signals); l < 0 || l > 1 {
			t.Errorf("Cognitive load out of bounds: %f", l)
		}
		if a := attentionLevel(signals); a < 0 || a > 1 {
			t.Errorf("Attention out of bounds: %f", a)
		}
	}
}
