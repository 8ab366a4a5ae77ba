package session

import "sync"

// StopCause names why the session loop decided to stop. The first recorded
// cause wins and is carried through finalization for diagnostics.
type StopCause string

const (
	// CauseRequested is an external finish: IPC command or process signal.
	CauseRequested StopCause = "requested"
	// CauseProviderEndIntent is the exchange backend flagging completion.
	CauseProviderEndIntent StopCause = "provider_end_intent"
	// CauseClassifier is the local completion-intent classifier firing.
	CauseClassifier StopCause = "classifier"
	// CauseTurnCap is the configured turn limit being reached.
	CauseTurnCap StopCause = "turn_cap"
)

// interrupting reports whether a cause should cut the current turn short.
// Natural end intent lets the goodbye reply finish playing; an external
// finish request does not.
func (c StopCause) interrupting() bool {
	return c == CauseRequested
}

// FinishSignal is the explicit finish token observed at every suspension
// point. Request is monotonic: the flag only ever moves to requested, and
// the first cause sticks.
type FinishSignal struct {
	mu        sync.Mutex
	requested bool
	cause     StopCause

	done      chan struct{}
	interrupt chan struct{}
}

// NewFinishSignal returns an unset signal.
func NewFinishSignal() *FinishSignal {
	return &FinishSignal{
		done:      make(chan struct{}),
		interrupt: make(chan struct{}),
	}
}

// Request marks the session for finishing. Returns true when this call was
// the first. An interrupting cause closes the interrupt channel even when a
// softer cause was recorded first.
func (s *FinishSignal) Request(cause StopCause) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := !s.requested
	if first {
		s.requested = true
		s.cause = cause
		close(s.done)
	}
	if cause.interrupting() {
		select {
		case <-s.interrupt:
		default:
			close(s.interrupt)
		}
	}
	return first
}

// Requested reports whether finishing was asked for.
func (s *FinishSignal) Requested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}

// Cause returns the first recorded stop cause, empty when unset.
func (s *FinishSignal) Cause() StopCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Done closes once any finish is requested.
func (s *FinishSignal) Done() <-chan struct{} {
	return s.done
}

// Interrupt closes only for causes that should cut the current turn short.
func (s *FinishSignal) Interrupt() <-chan struct{} {
	return s.interrupt
}
