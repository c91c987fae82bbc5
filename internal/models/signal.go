package models

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Signal types emitted by the Canvas-side collaborator. The weighted
// types drive the struggle score; the rest are context-only.
const (
	SignalHoverConfusion  = "hover-confusion"
	SignalRapidScroll     = "rapid-scroll"
	SignalIdleTimeout     = "idle-timeout"
	SignalRepeatedAccess  = "repeated-access"
	SignalHelpSeeking     = "help-seeking"
	SignalClick           = "click"
	SignalQuizInteraction = "quiz-interaction"
	SignalPageLeave       = "page-leave"
	SignalFocusChange     = "focus-change"
)

const (
	MaxSignalDurationMs     = 300000
	MaxElementContextLength = 500
)

var validSignalTypes = map[string]bool{
	SignalHoverConfusion:  true,
	SignalRapidScroll:     true,
	SignalIdleTimeout:     true,
	SignalRepeatedAccess:  true,
	SignalHelpSeeking:     true,
	SignalClick:           true,
	SignalQuizInteraction: true,
	SignalPageLeave:       true,
	SignalFocusChange:     true,
}

// BehavioralSignal is one telemetry event, already authenticated by the
// transport layer. Consumed exactly once by the owning session actor.
type BehavioralSignal struct {
	ID              uuid.UUID `json:"id"`
	SessionID       string    `json:"session_id"`
	SignalType      string    `json:"signal_type"`
	DurationMs      int       `json:"duration_ms"`
	ElementContext  string    `json:"element_context"`
	PageContentHash string    `json:"page_content_hash"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validate performs the structural check on an inbound signal. Transport
// security (nonce/signature/origin) is the collaborator's job and is not
// re-verified here.
func (s *BehavioralSignal) Validate() map[string]string {
	fieldErrors := make(map[string]string)

	if !IsValidSignalType(s.SignalType) {
		fieldErrors["signal_type"] = fmt.Sprintf("unknown signal type %q", s.SignalType)
	}
	if s.DurationMs < 0 || s.DurationMs > MaxSignalDurationMs {
		fieldErrors["duration_ms"] = fmt.Sprintf("duration_ms must be between 0 and %d", MaxSignalDurationMs)
	}

	if len(fieldErrors) > 0 {
		return fieldErrors
	}
	return nil
}

// Normalize fills defaults and bounds free-text fields. Called after
// Validate on the ingest path.
func (s *BehavioralSignal) Normalize() {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	if len(s.ElementContext) > MaxElementContextLength {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := MaxElementContextLength
		for cut > 0 && !utf8.RuneStart(s.ElementContext[cut]) {
			cut--
		}
		s.ElementContext = s.ElementContext[:cut]
	}
}

func IsValidSignalType(signalType string) bool {
	return validSignalTypes[signalType]
}
