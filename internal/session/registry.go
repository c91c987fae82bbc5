package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"edupulse-backend/internal/models"
)

// NotFoundError is returned for any operation against an unknown or
// already-evicted session. Callers must start a session before signaling.
type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

func errSessionNotFound(sessionID string) error {
	return &NotFoundError{Message: "session " + sessionID + " not found"}
}

// SignalPruner deletes persisted per-session interaction rows older than
// the retention window. Best-effort: sweep failures only get logged.
type SignalPruner interface {
	DeleteSignalsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Registry supervises one actor per session id. It routes messages to
// the owning actor and is the only place actors are created or removed.
// Sends into an actor's inbox happen while holding the registry lock, so
// no message can race an eviction: once End removes an actor, nobody can
// reach its inbox again.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]*Actor

	broadcaster  Broadcaster
	dispatcher   Dispatcher
	signalWriter SignalWriter
	pruner       SignalPruner

	sessionTTL      time.Duration
	sweepInterval   time.Duration
	signalRetention time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewRegistry(broadcaster Broadcaster, dispatcher Dispatcher, signalWriter SignalWriter, pruner SignalPruner, sessionTTL, sweepInterval, signalRetention time.Duration) *Registry {
	return &Registry{
		actors:          make(map[string]*Actor),
		broadcaster:     broadcaster,
		dispatcher:      dispatcher,
		signalWriter:    signalWriter,
		pruner:          pruner,
		sessionTTL:      sessionTTL,
		sweepInterval:   sweepInterval,
		signalRetention: signalRetention,
		stopChan:        make(chan struct{}),
	}
}

// StartSession creates the owning actor for a session id. Starting an
// already-active session returns the existing state (idempotent), so a
// reconnecting client does not lose its score.
func (r *Registry) StartSession(sessionID string, learnerID, tenantID uuid.UUID, courseID string) models.LearnerSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.actors[sessionID]; ok {
		reply := make(chan models.LearnerSession, 1)
		existing.inbox <- snapshotMsg{reply: reply}
		return <-reply
	}

	now := time.Now().UTC()
	state := models.LearnerSession{
		SessionID:      sessionID,
		LearnerID:      learnerID,
		TenantID:       tenantID,
		CourseID:       courseID,
		StartTime:      now,
		LastActivityAt: now,
	}
	r.actors[sessionID] = newActor(state, r.broadcaster, r.dispatcher, r.signalWriter)
	return state
}

// send routes a message to the owning actor under the read lock.
func (r *Registry) send(sessionID string, msg interface{}) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[sessionID]
	if !ok {
		return false
	}
	a.inbox <- msg
	return true
}

// Ingest serializes one signal into the owning actor's inbox and waits
// for its reply.
func (r *Registry) Ingest(sessionID string, signal models.BehavioralSignal) (models.IngestResult, error) {
	reply := make(chan models.IngestResult, 1)
	if !r.send(sessionID, ingestMsg{signal: signal, reply: reply}) {
		return models.IngestResult{}, errSessionNotFound(sessionID)
	}
	return <-reply, nil
}

func (r *Registry) Status(sessionID string) (models.SessionStatus, error) {
	reply := make(chan models.SessionStatus, 1)
	if !r.send(sessionID, statusMsg{reply: reply}) {
		return models.SessionStatus{}, errSessionNotFound(sessionID)
	}
	return <-reply, nil
}

// End archives the session: the actor answers with its final summary and
// its run loop exits. A later start with the same id is a fresh session
// and a fresh intervention decision.
func (r *Registry) End(sessionID string) (models.SessionSummary, error) {
	r.mu.Lock()
	a, ok := r.actors[sessionID]
	if !ok {
		r.mu.Unlock()
		return models.SessionSummary{}, errSessionNotFound(sessionID)
	}
	delete(r.actors, sessionID)

	reply := make(chan models.SessionSummary, 1)
	a.inbox <- endMsg{reply: reply}
	r.mu.Unlock()

	return <-reply, nil
}

// Analytics aggregates live actor snapshots for one tenant.
func (r *Registry) Analytics(tenantID uuid.UUID) models.TenantAnalytics {
	type liveSnapshot struct {
		state       chan models.LearnerSession
		signalCount chan models.SessionStatus
	}

	r.mu.RLock()
	pending := make([]liveSnapshot, 0, len(r.actors))
	for _, a := range r.actors {
		snap := liveSnapshot{
			state:       make(chan models.LearnerSession, 1),
			signalCount: make(chan models.SessionStatus, 1),
		}
		a.inbox <- snapshotMsg{reply: snap.state}
		a.inbox <- statusMsg{reply: snap.signalCount}
		pending = append(pending, snap)
	}
	r.mu.RUnlock()

	result := models.TenantAnalytics{TenantID: tenantID}
	scoreSum := 0.0
	for _, snap := range pending {
		state := <-snap.state
		status := <-snap.signalCount
		if state.TenantID != tenantID {
			continue
		}
		result.ActiveSessions++
		result.TotalSignals += status.SignalCount
		scoreSum += state.StruggleScore
		if state.InterventionTriggered {
			result.InterventionsTriggered++
		}
	}
	if result.ActiveSessions > 0 {
		result.AverageStruggleScore = scoreSum / float64(result.ActiveSessions)
	}
	return result
}

// StartSweeper runs the eviction loop until Stop: idle actors past the
// TTL are archived and persisted signals past retention are pruned.
func (r *Registry) StartSweeper() {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.Sweep(context.Background(), time.Now().UTC())
			}
		}
	}()
	log.Printf("Session eviction sweeper started (every %s, TTL %s)", r.sweepInterval, r.sessionTTL)
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Sweep is idempotent: running it twice back to back leaves the same
// live set and persisted state as running it once. Failures here must
// never affect live scoring, so everything is log-and-continue.
func (r *Registry) Sweep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-r.sessionTTL)

	r.mu.RLock()
	pending := make(map[string]chan models.LearnerSession, len(r.actors))
	for id, a := range r.actors {
		reply := make(chan models.LearnerSession, 1)
		a.inbox <- snapshotMsg{reply: reply}
		pending[id] = reply
	}
	r.mu.RUnlock()

	for id, reply := range pending {
		snap := <-reply
		if snap.LastActivityAt.Before(cutoff) {
			if _, err := r.End(id); err == nil {
				log.Printf("Evicted idle session %s", id)
			}
		}
	}

	if r.pruner != nil {
		deleted, err := r.pruner.DeleteSignalsOlderThan(ctx, now.Add(-r.signalRetention))
		if err != nil {
			log.Printf("Signal retention sweep failed: %v", err)
		} else if deleted > 0 {
			log.Printf("Signal retention sweep deleted %d rows", deleted)
		}
	}
}

// ActiveSessions reports the current number of live actors.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}
