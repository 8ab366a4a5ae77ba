// Package observe serves the read-only phase/decision feed: a snapshot
// endpoint for the current session state and a websocket stream of
// orchestration events for live watchers.
package observe

import "time"

// Kind groups feed events.
type Kind string

const (
	// KindPhase marks a lifecycle phase transition.
	KindPhase Kind = "phase"
	// KindDecision marks a continuation or finish decision.
	KindDecision Kind = "decision"
	// KindDegraded marks a non-fatal failure the turn recovered from.
	KindDegraded Kind = "degraded"
)

// Event is one orchestration signal.
type Event struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn,omitempty"`
	Kind      Kind      `json:"kind"`
	Phase     string    `json:"phase,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Phase builds a phase-transition event.
func Phase(sessionID string, turn int, phase string) Event {
	return Event{Time: time.Now().UTC(), SessionID: sessionID, Turn: turn, Kind: KindPhase, Phase: phase}
}

// Decision builds a decision event.
func Decision(sessionID string, turn int, detail string) Event {
	return Event{Time: time.Now().UTC(), SessionID: sessionID, Turn: turn, Kind: KindDecision, Detail: detail}
}

// Degraded builds a degradation event.
func Degraded(sessionID string, turn int, detail string) Event {
	return Event{Time: time.Now().UTC(), SessionID: sessionID, Turn: turn, Kind: KindDegraded, Detail: detail}
}
