package plusserver

import "fmt"

// OutcomeKind tells which variant an Outcome holds.
type OutcomeKind int

const (
	// OutcomeNone: the send failed and fail-silently swallowed the error.
	OutcomeNone OutcomeKind = iota
	// OutcomeHandle: accepted with registered delivery; HandleID is set.
	OutcomeHandle
	// OutcomeAccepted: accepted without a handle id (unregistered or debug).
	OutcomeAccepted
)

// Outcome is the result of a send.
type Outcome struct {
	Kind     OutcomeKind
	HandleID string
}

// Accepted is the boolean view of the outcome.
func (o Outcome) Accepted() bool {
	return o.Kind != OutcomeNone
}

func (o Outcome) IsNone() bool {
	return o.Kind == OutcomeNone
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeHandle:
		return o.HandleID
	case OutcomeAccepted:
		return "true"
	}
	return "none"
}

func (o Outcome) GoString() string {
	return fmt.Sprintf("plusserver.Outcome{Kind:%d, HandleID:%q}", o.Kind, o.HandleID)
}
