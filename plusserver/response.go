package plusserver

import (
	"fmt"
	"strings"
)

const (
	messageOK    = "REQUEST OK"
	messageError = "ERROR"
)

// Response is a parsed provider answer: a status line followed by
// "key = value" lines.
type Response struct {
	// Message is the first line, "REQUEST OK" or "ERROR".
	Message    string
	StatusCode int
	Raw        string

	keys   []string
	fields map[string]string
}

// ParseResponse parses a provider payload. Lines without "=" are ignored.
func ParseResponse(text string) *Response {
	r := &Response{
		Raw:    text,
		fields: make(map[string]string),
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return r
	}

	r.Message = strings.TrimSpace(lines[0])
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := r.fields[key]; !seen {
			r.keys = append(r.keys, key)
		}
		r.fields[key] = strings.TrimSpace(value)
	}

	return r
}

func (r *Response) Get(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	value, ok := r.fields[key]
	return value, ok
}

// Keys returns the field names in payload order.
func (r *Response) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

func (r *Response) HandleID() string {
	v, _ := r.Get("handle")
	return v
}

func (r *Response) State() string {
	v, _ := r.Get("state")
	return v
}

func (r *Response) ErrorText() string {
	v, _ := r.Get("error")
	return v
}

func (r *Response) IsOK() bool {
	return r != nil && r.Message == messageOK
}

func (r *Response) IsError() bool {
	return r != nil && r.Message == messageError
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("<Response [%s]>", r.Message)
}

// checkResponse turns a payload that does not report success into a request
// error carrying the provider's error text.
func checkResponse(r *Response) error {
	if r.IsOK() {
		return nil
	}

	msg := r.ErrorText()
	switch {
	case msg != "":
	case r.Message != "":
		msg = fmt.Sprintf("unexpected response %q", r.Message)
	default:
		msg = "empty response"
	}
	return requestError(r.StatusCode, msg)
}

// submitOutcome maps an accepted submission to its outcome. A handle id is
// only surfaced for registered, non-debug sends.
func submitOutcome(r *Response, p params) Outcome {
	if p.RegisteredDelivery && !p.Debug {
		if handle := r.HandleID(); handle != "" {
			return Outcome{Kind: OutcomeHandle, HandleID: handle}
		}
	}
	return Outcome{Kind: OutcomeAccepted}
}

// parseStateResponse extracts the delivery state of an accepted state query.
func parseStateResponse(r *Response) (State, error) {
	if err := checkResponse(r); err != nil {
		return StateNone, err
	}

	st, err := ParseState(r.State())
	if err != nil {
		return StateNone, requestError(r.StatusCode, err.Error())
	}
	return st, nil
}
