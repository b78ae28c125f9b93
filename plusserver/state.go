package plusserver

import (
	"fmt"
	"strings"
)

// State is the delivery state reported by the provider.
type State string

const (
	// StateNone means no state is known, e.g. after a suppressed failure.
	StateNone State = ""
	// StateNew: accepted, not yet delivered.
	StateNew State = "new"
	// StateProcessed: in transit.
	StateProcessed State = "processed"
	// StateArrived: delivered. Terminal.
	StateArrived State = "arrived"
	// StateRetry: the provider retries delivery.
	StateRetry State = "retry"
	// StateError: the provider gave up. Terminal.
	StateError State = "error"
)

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	switch s {
	case StateNew, StateProcessed, StateArrived, StateRetry, StateError:
		return true
	}
	return false
}

// IsTerminal reports whether polling can stop at s.
func (s State) IsTerminal() bool {
	return s == StateArrived || s == StateError
}

func ParseState(token string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(token)))
	if !st.IsValid() {
		return StateNone, fmt.Errorf("unknown state %q", token)
	}
	return st, nil
}
