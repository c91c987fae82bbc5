package session

import (
	"time"

	"edupulse-backend/internal/models"
)

// How many signals an actor keeps in memory. Oldest entries are trimmed
// first; persisted history is the analyzer's source for anything older.
const maxSignalHistory = 200

// Broadcaster pushes struggle events to subscribed observers. Calls must
// be non-blocking from the actor's point of view.
type Broadcaster interface {
	BroadcastStruggle(event StruggleBroadcast)
}

// Dispatcher turns an intervention decision into a delivery attempt and
// a persisted record.
type Dispatcher interface {
	Trigger(session models.LearnerSession, interventionType string, score float64)
}

// SignalWriter persists ingested signals off the hot path.
type SignalWriter interface {
	EnqueueSignal(signal models.BehavioralSignal, session models.LearnerSession)
}

// StruggleBroadcast is the push-channel payload for observers.
type StruggleBroadcast struct {
	Type string                `json:"type"`
	Data StruggleBroadcastData `json:"data"`
}

type StruggleBroadcastData struct {
	SessionID        string    `json:"session_id"`
	TenantID         string    `json:"tenant_id"`
	CourseID         string    `json:"course_id,omitempty"`
	StruggleScore    float64   `json:"struggle_score"`
	InterventionType string    `json:"intervention_type"`
	DetectedAt       time.Time `json:"detected_at"`
}

type ingestMsg struct {
	signal models.BehavioralSignal
	reply  chan models.IngestResult
}

type statusMsg struct {
	reply chan models.SessionStatus
}

type endMsg struct {
	reply chan models.SessionSummary
}

type snapshotMsg struct {
	reply chan models.LearnerSession
}

// Actor owns one session's state. Its run loop is the only goroutine
// that reads or writes the state or signal history.
type Actor struct {
	inbox chan interface{}

	state   models.LearnerSession
	signals []models.BehavioralSignal

	broadcaster  Broadcaster
	dispatcher   Dispatcher
	signalWriter SignalWriter
}

func newActor(state models.LearnerSession, broadcaster Broadcaster, dispatcher Dispatcher, signalWriter SignalWriter) *Actor {
	a := &Actor{
		inbox:        make(chan interface{}, 64),
		state:        state,
		broadcaster:  broadcaster,
		dispatcher:   dispatcher,
		signalWriter: signalWriter,
	}
	go a.run()
	return a
}

func (a *Actor) run() {
	for raw := range a.inbox {
		switch msg := raw.(type) {
		case ingestMsg:
			msg.reply <- a.ingest(msg.signal)
		case statusMsg:
			msg.reply <- a.status()
		case endMsg:
			msg.reply <- a.end()
			return
		case snapshotMsg:
			msg.reply <- a.state
		}
	}
}

// ingest runs entirely inside the actor loop: append, rescore, decide.
func (a *Actor) ingest(signal models.BehavioralSignal) models.IngestResult {
	a.signals = append(a.signals, signal)
	if len(a.signals) > maxSignalHistory {
		a.signals = a.signals[len(a.signals)-maxSignalHistory:]
	}
	a.state.LastActivityAt = time.Now().UTC()

	a.state.StruggleScore = computeScore(a.signals, a.state.LastActivityAt)

	triggeredNow := false
	if a.state.StruggleScore > InterventionThreshold && !a.state.InterventionTriggered {
		a.state.InterventionTriggered = true
		a.state.InterventionType = selectInterventionType(a.signals)
		triggeredNow = true
	}

	if a.signalWriter != nil {
		a.signalWriter.EnqueueSignal(signal, a.state)
	}

	if triggeredNow {
		// Delivery and fan-out never block scoring.
		snapshot := a.state
		go a.notify(snapshot)
	}

	return models.IngestResult{
		StruggleScore:         a.state.StruggleScore,
		InterventionTriggered: a.state.InterventionTriggered,
		InterventionType:      a.state.InterventionType,
	}
}

func (a *Actor) notify(snapshot models.LearnerSession) {
	if a.dispatcher != nil {
		a.dispatcher.Trigger(snapshot, snapshot.InterventionType, snapshot.StruggleScore)
	}
	if a.broadcaster != nil {
		a.broadcaster.BroadcastStruggle(StruggleBroadcast{
			Type: "struggle_detected",
			Data: StruggleBroadcastData{
				SessionID:        snapshot.SessionID,
				TenantID:         snapshot.TenantID.String(),
				CourseID:         snapshot.CourseID,
				StruggleScore:    snapshot.StruggleScore,
				InterventionType: snapshot.InterventionType,
				DetectedAt:       snapshot.LastActivityAt,
			},
		})
	}
}

func (a *Actor) status() models.SessionStatus {
	return models.SessionStatus{
		SessionID:             a.state.SessionID,
		DurationSeconds:       int(time.Since(a.state.StartTime).Seconds()),
		SignalCount:           len(a.signals),
		StruggleScore:         a.state.StruggleScore,
		InterventionTriggered: a.state.InterventionTriggered,
	}
}

func (a *Actor) end() models.SessionSummary {
	now := time.Now().UTC()
	a.state.EndedAt = &now
	return models.SessionSummary{
		SessionID:    a.state.SessionID,
		FinalScore:   a.state.StruggleScore,
		TotalSignals: len(a.signals),
	}
}
