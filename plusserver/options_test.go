package plusserver

import (
	"testing"
	"time"
)

func defaultParams(v Values) params {
	v.Encoding = DefaultEncoding
	v.MaxParts = DefaultMaxParts
	v.Timeout = DefaultTimeout
	v.PutURL = DefaultPutURL
	v.StateURL = DefaultStateURL
	v.PollInterval = DefaultPollInterval
	return params{Values: v, RegisteredDelivery: true}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	got := resolve(Values{}, newCallOptions())
	want := defaultParams(Values{})
	if got != want {
		t.Fatalf("resolve() = %+v, want %+v", got, want)
	}
	if got.Project != "" || got.Orig != "" || got.Deadline != 0 {
		t.Fatalf("unset fields should stay empty: %+v", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	configured := Values{
		Username: "user",
		Password: "secret",
		Project:  "billing",
		Orig:     "ACME",
		Encoding: EncodingGSM,
		MaxParts: 3,
		Timeout:  5 * time.Second,
	}
	configuredParams := func() params {
		p := defaultParams(configured)
		p.Encoding = EncodingGSM
		p.MaxParts = 3
		p.Timeout = 5 * time.Second
		return p
	}

	testCases := []struct {
		name   string
		values Values
		opts   []Option
		want   func() params
	}{
		{
			name:   "configured beats default",
			values: configured,
			want:   configuredParams,
		},
		{
			name:   "per call beats configured",
			values: configured,
			opts: []Option{
				WithProject("marketing"),
				WithOrig("Shop"),
				WithEncoding(EncodingUTF8),
				WithMaxParts(5),
				WithTimeout(time.Second),
			},
			want: func() params {
				p := configuredParams()
				p.Project = "marketing"
				p.Orig = "Shop"
				p.Encoding = EncodingUTF8
				p.MaxParts = 5
				p.Timeout = time.Second
				return p
			},
		},
		{
			name:   "per call beats default",
			values: Values{},
			opts:   []Option{WithMaxParts(2), WithEncoding(EncodingUCS2)},
			want: func() params {
				p := defaultParams(Values{})
				p.MaxParts = 2
				p.Encoding = EncodingUCS2
				return p
			},
		},
		{
			name:   "fields resolve independently",
			values: configured,
			opts:   []Option{WithOrig("")},
			want: func() params {
				p := configuredParams()
				p.Orig = ""
				return p
			},
		},
		{
			name:   "flags",
			values: configured,
			opts: []Option{
				WithRegisteredDelivery(false),
				WithDebug(true),
				WithFailSilently(true),
				WithWait(true),
				WithDeadline(time.Minute),
			},
			want: func() params {
				p := configuredParams()
				p.RegisteredDelivery = false
				p.Debug = true
				p.FailSilently = true
				p.Wait = true
				p.Deadline = time.Minute
				return p
			},
		},
		{
			name:   "last option wins",
			values: Values{},
			opts:   []Option{WithProject("a"), nil, WithProject("b")},
			want: func() params {
				p := defaultParams(Values{})
				p.Project = "b"
				return p
			},
		},
		{
			name:   "non positive deadline is unbounded",
			values: Values{},
			opts:   []Option{WithDeadline(-time.Second)},
			want: func() params {
				return defaultParams(Values{})
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := resolve(tc.values, newCallOptions(tc.opts...))
			if want := tc.want(); got != want {
				t.Fatalf("resolve() = %+v, want %+v", got, want)
			}
		})
	}
}
