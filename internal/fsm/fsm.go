// Package fsm holds the companion's conversation state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateOnboarding State = "onboarding"
	StateListening  State = "listening"
	StateThinking   State = "thinking"
	StateSpeaking   State = "speaking"
	StateStopped    State = "stopped"
	StateError      State = "error"
)

const (
	EventStart     Event = "start"
	EventOnboarded Event = "onboarded"
	EventHeard     Event = "heard"
	EventReply     Event = "reply"
	EventSpoken    Event = "spoken"
	EventExit      Event = "exit"
	EventFail      Event = "fail"
	EventReset     Event = "reset"
)

// Transition returns the state reached from current on event.
//
// fail reaches error from any live state and exit reaches stopped from any live state.
// stopped is terminal.
func Transition(current State, event Event) (State, error) {
	if current == StateStopped {
		return current, invalidTransition(current, event)
	}
	switch event {
	case EventFail:
		if !isKnown(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateError, nil
	case EventExit:
		if !isKnown(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateStopped, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateOnboarding, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateOnboarding:
		switch event {
		case EventOnboarded:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventHeard:
			return StateThinking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateThinking:
		switch event {
		case EventReply:
			return StateSpeaking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventSpoken:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func isKnown(state State) bool {
	switch state {
	case StateIdle, StateOnboarding, StateListening, StateThinking, StateSpeaking, StateStopped, StateError:
		return true
	}
	return false
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
