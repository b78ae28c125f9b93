package plusserver

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()

	r := ParseResponse("REQUEST OK\nA = 42\nB = X Y\n C D = ")

	if r.Message != "REQUEST OK" {
		t.Fatalf("Message = %q, want REQUEST OK", r.Message)
	}
	if !r.IsOK() || r.IsError() {
		t.Fatalf("IsOK/IsError = %v/%v, want true/false", r.IsOK(), r.IsError())
	}
	if keys := r.Keys(); !slices.Equal(keys, []string{"A", "B", "C D"}) {
		t.Fatalf("Keys() = %v", keys)
	}

	values := map[string]string{"A": "42", "B": "X Y", "C D": ""}
	for key, want := range values {
		got, ok := r.Get(key)
		if !ok {
			t.Fatalf("Get(%q) missing", key)
		}
		if got != want {
			t.Fatalf("Get(%q) = %q, want %q", key, got, want)
		}
	}

	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get(missing) should report false")
	}
}

func TestParseResponseEdgeCases(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		text    string
		message string
		keys    []string
	}{
		{name: "empty", text: "", message: "", keys: nil},
		{name: "status only", text: "REQUEST OK", message: "REQUEST OK", keys: nil},
		{name: "crlf", text: "ERROR\r\nerror = bad\r\n", message: "ERROR", keys: []string{"error"}},
		{name: "lines without equals", text: "REQUEST OK\nnoise\nhandle=abc", message: "REQUEST OK", keys: []string{"handle"}},
		{name: "value containing equals", text: "REQUEST OK\nurl = a=b", message: "REQUEST OK", keys: []string{"url"}},
		{name: "repeated key", text: "REQUEST OK\nk = 1\nk = 2", message: "REQUEST OK", keys: []string{"k"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := ParseResponse(tc.text)
			if r.Message != tc.message {
				t.Fatalf("Message = %q, want %q", r.Message, tc.message)
			}
			if keys := r.Keys(); !slices.Equal(keys, tc.keys) {
				t.Fatalf("Keys() = %v, want %v", keys, tc.keys)
			}
			if r.Raw != tc.text {
				t.Fatalf("Raw = %q, want %q", r.Raw, tc.text)
			}
		})
	}

	r := ParseResponse("REQUEST OK\nurl = a=b\nk = 1\nk = 2")
	if v, _ := r.Get("url"); v != "a=b" {
		t.Fatalf("url = %q, want a=b", v)
	}
	if v, _ := r.Get("k"); v != "2" {
		t.Fatalf("k = %q, want the last value", v)
	}
}

func TestResponseAccessors(t *testing.T) {
	t.Parallel()

	r := ParseResponse("REQUEST OK\nhandle = abc\nstate = new")
	if r.HandleID() != "abc" || r.State() != "new" || r.ErrorText() != "" {
		t.Fatalf("accessors = %q/%q/%q", r.HandleID(), r.State(), r.ErrorText())
	}
	if got := r.String(); got != "<Response [REQUEST OK]>" {
		t.Fatalf("String() = %q", got)
	}

	var missing *Response
	if missing.HandleID() != "" || missing.Keys() != nil || missing.IsOK() {
		t.Fatal("nil response should be empty")
	}
	if got := missing.String(); got != "<nil>" {
		t.Fatalf("nil String() = %q, want <nil>", got)
	}
}

func TestCheckResponse(t *testing.T) {
	t.Parallel()

	if err := checkResponse(ParseResponse("REQUEST OK")); err != nil {
		t.Fatalf("checkResponse(REQUEST OK) error = %v", err)
	}

	testCases := []struct {
		name string
		text string
		want string
	}{
		{name: "provider error", text: "ERROR\nerror = Invalid credentials", want: "Invalid credentials"},
		{name: "error without text", text: "ERROR", want: `unexpected response "ERROR"`},
		{name: "garbage", text: "<html>", want: `unexpected response "<html>"`},
		{name: "empty", text: "", want: "empty response"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := checkResponse(ParseResponse(tc.text))
			if !errors.Is(err, ErrRequest) {
				t.Fatalf("checkResponse() error = %v, want ErrRequest", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %q, want it to contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestSubmitOutcome(t *testing.T) {
	t.Parallel()

	withHandle := ParseResponse("REQUEST OK\nhandle = abc")
	withoutHandle := ParseResponse("REQUEST OK")

	testCases := []struct {
		name       string
		resp       *Response
		registered bool
		debug      bool
		want       Outcome
	}{
		{name: "registered", resp: withHandle, registered: true, want: Outcome{Kind: OutcomeHandle, HandleID: "abc"}},
		{name: "registered without handle", resp: withoutHandle, registered: true, want: Outcome{Kind: OutcomeAccepted}},
		{name: "unregistered", resp: withHandle, want: Outcome{Kind: OutcomeAccepted}},
		{name: "debug", resp: withHandle, registered: true, debug: true, want: Outcome{Kind: OutcomeAccepted}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := submitOutcome(tc.resp, params{RegisteredDelivery: tc.registered, Debug: tc.debug})
			if got != tc.want {
				t.Fatalf("submitOutcome() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseStateResponse(t *testing.T) {
	t.Parallel()

	st, err := parseStateResponse(ParseResponse("REQUEST OK\nstate = ARRIVED "))
	if err != nil {
		t.Fatalf("parseStateResponse() error = %v", err)
	}
	if st != StateArrived {
		t.Fatalf("state = %s, want arrived", st)
	}

	if _, err := parseStateResponse(ParseResponse("REQUEST OK")); !errors.Is(err, ErrRequest) {
		t.Fatalf("missing state error = %v, want ErrRequest", err)
	}

	_, err = parseStateResponse(ParseResponse("ERROR\nerror = unknown handle"))
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("provider error = %v, want ErrRequest", err)
	}
	if !strings.Contains(err.Error(), "unknown handle") {
		t.Fatalf("error = %q, want the provider text", err.Error())
	}
}

func TestStateAndOutcome(t *testing.T) {
	t.Parallel()

	for _, st := range []State{StateNew, StateProcessed, StateArrived, StateRetry, StateError} {
		parsed, err := ParseState(st.String())
		if err != nil {
			t.Fatalf("ParseState(%q) error = %v", st, err)
		}
		if parsed != st {
			t.Fatalf("ParseState(%q) = %s", st, parsed)
		}
	}
	if !StateArrived.IsTerminal() || !StateError.IsTerminal() || StateRetry.IsTerminal() {
		t.Fatal("only arrived and error are terminal")
	}
	if StateNone.IsValid() {
		t.Fatal("StateNone should not be valid")
	}
	if _, err := ParseState(""); err == nil {
		t.Fatal("ParseState(\"\") should fail")
	}

	outcomes := []struct {
		outcome Outcome
		want    string
	}{
		{outcome: Outcome{Kind: OutcomeHandle, HandleID: "abc"}, want: "abc"},
		{outcome: Outcome{Kind: OutcomeAccepted}, want: "true"},
		{outcome: Outcome{}, want: "none"},
	}
	for _, tc := range outcomes {
		if got := tc.outcome.String(); got != tc.want {
			t.Errorf("Outcome%+v.String() = %q, want %q", tc.outcome, got, tc.want)
		}
	}
	if (Outcome{}).Accepted() {
		t.Fatal("empty outcome should not be accepted")
	}
}
