package plusserver

import (
	"context"
	"fmt"
	"strings"
)

// Phase is the lifecycle position of a Message.
type Phase int

const (
	PhaseUnsent Phase = iota
	PhaseSent
	PhaseChecked
)

func (p Phase) String() string {
	switch p {
	case PhaseSent:
		return "sent"
	case PhaseChecked:
		return "checked"
	}
	return "unsent"
}

// Message is a single SMS send attempt. It is owned by the caller and is not
// safe for concurrent use.
type Message struct {
	Recipient string
	Body      string

	options        []Option
	outcome        Outcome
	state          State
	submitResponse *Response
	stateResponse  *Response
}

// NewMessage creates an unsent message. opts apply to every Send and
// CheckState of the message, below per-call options.
func NewMessage(recipient, body string, opts ...Option) *Message {
	return &Message{
		Recipient: recipient,
		Body:      body,
		options:   append([]Option(nil), opts...),
	}
}

// Send submits the message through the default client, or through the
// client of the Config given with WithConfig. Re-sending is a new submission
// and replaces the previous handle id and state.
func (m *Message) Send(ctx context.Context, opts ...Option) (Outcome, error) {
	return clientFor(m.optionsWith(opts)).Send(ctx, m, opts...)
}

// CheckState queries the provider for the state of the message. The message
// must have been sent with registered delivery. WithWait(true) polls until
// the message has arrived.
func (m *Message) CheckState(ctx context.Context, opts ...Option) (State, error) {
	return clientFor(m.optionsWith(opts)).CheckState(ctx, m, opts...)
}

// HandleID is the provider identifier, empty unless a registered send succeeded.
func (m *Message) HandleID() string {
	return m.outcome.HandleID
}

// State is the last known delivery state.
func (m *Message) State() State {
	return m.state
}

func (m *Message) Outcome() Outcome {
	return m.outcome
}

// SubmitResponse is the raw response of the last successful send.
func (m *Message) SubmitResponse() *Response {
	return m.submitResponse
}

// StateResponse is the raw response of the last successful state check.
func (m *Message) StateResponse() *Response {
	return m.stateResponse
}

func (m *Message) Phase() Phase {
	switch {
	case m.outcome.IsNone():
		return PhaseUnsent
	case m.stateResponse != nil:
		return PhaseChecked
	}
	return PhaseSent
}

func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<Message %s", m.Recipient)
	if handle := m.HandleID(); handle != "" {
		fmt.Fprintf(&b, " [%s]", handle)
	}
	if m.state != StateNone {
		fmt.Fprintf(&b, " %s", m.state)
	}
	b.WriteString(">")
	return b.String()
}

func (m *Message) optionsWith(opts []Option) []Option {
	merged := make([]Option, 0, len(m.options)+len(opts))
	merged = append(merged, m.options...)
	return append(merged, opts...)
}

func (m *Message) reset() {
	m.outcome = Outcome{}
	m.state = StateNone
	m.submitResponse = nil
	m.stateResponse = nil
}

func (m *Message) sent(resp *Response, outcome Outcome) {
	m.outcome = outcome
	m.submitResponse = resp
	m.stateResponse = nil
	m.state = StateNone
	if st, err := ParseState(resp.State()); err == nil {
		m.state = st
	}
}

func (m *Message) checked(resp *Response, st State) {
	m.stateResponse = resp
	m.state = st
}

func (m *Message) stateFailed() {
	m.stateResponse = nil
}
