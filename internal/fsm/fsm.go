package fsm

import "fmt"

type State string

type Event string

const (
	StateInitializing State = "initializing"
	StateCalibrating  State = "calibrating"
	StateListening    State = "listening"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateFinalizing   State = "finalizing"
	StateFinished     State = "finished"
	StateIdle         State = "idle"
)

const (
	EventBegin      Event = "begin"
	EventCalibrated Event = "calibrated"
	EventCaptured   Event = "captured"
	EventReplied    Event = "replied"
	EventSpoken     Event = "spoken"
	EventFinish     Event = "finish"
	EventFinalized  Event = "finalized"
	EventFail       Event = "fail"
)

// Transition validates one lifecycle step. EventFail lands in StateIdle (the
// recoverable error terminal) from anywhere; EventFinish routes to
// StateFinalizing from every non-finished state, including StateIdle so a
// failed finalization can be retried.
func Transition(current State, event Event) (State, error) {
	switch event {
	case EventFail:
		return StateIdle, nil
	case EventFinish:
		if current == StateFinished {
			return current, invalidTransition(current, event)
		}
		return StateFinalizing, nil
	}

	switch current {
	case StateInitializing:
		switch event {
		case EventBegin:
			return StateCalibrating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCalibrating:
		switch event {
		case EventCalibrated:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventCaptured:
			return StateThinking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateThinking:
		switch event {
		case EventReplied:
			return StateSpeaking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventSpoken:
			return StateCalibrating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventFinalized:
			return StateFinished, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinished, StateIdle:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
