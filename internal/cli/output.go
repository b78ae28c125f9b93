package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kursadbilgin/plusserver-sms/plusserver"
)

type sendResult struct {
	Accepted bool   `json:"accepted"`
	HandleID string `json:"handleId,omitempty"`
	State    string `json:"state,omitempty"`
}

type stateResult struct {
	HandleID string `json:"handleId"`
	State    string `json:"state"`
}

type enqueueResult struct {
	RequestID string `json:"requestId"`
	Queue     string `json:"queue"`
}

func newSendResult(outcome plusserver.Outcome, state plusserver.State) sendResult {
	return sendResult{
		Accepted: outcome.Accepted(),
		HandleID: outcome.HandleID,
		State:    state.String(),
	}
}

func (r sendResult) text() string {
	if r.State != "" {
		return fmt.Sprintf("%s %s", outcomeText(r), r.State)
	}
	return outcomeText(r)
}

func outcomeText(r sendResult) string {
	switch {
	case r.HandleID != "":
		return r.HandleID
	case r.Accepted:
		return "accepted"
	}
	return "none"
}

func stateText(st plusserver.State) string {
	if st == plusserver.StateNone {
		return "none"
	}
	return st.String()
}

func render(w io.Writer, asJSON bool, value any, text string) error {
	if asJSON {
		enc := json.NewEncoder(w)
		return enc.Encode(value)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
