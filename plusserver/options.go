package plusserver

import "time"

// Option overrides a configured value or toggles a behavior for one call.
type Option func(*callOptions)

type callOptions struct {
	project            *string
	orig               *string
	encoding           *string
	maxParts           *int
	timeout            *time.Duration
	deadline           *time.Duration
	registeredDelivery *bool
	debug              *bool
	failSilently       *bool
	wait               *bool
	config             *Config
}

func newCallOptions(opts ...Option) callOptions {
	var co callOptions
	for _, apply := range opts {
		if apply != nil {
			apply(&co)
		}
	}
	return co
}

func WithProject(project string) Option {
	return func(o *callOptions) { o.project = &project }
}

func WithOrig(orig string) Option {
	return func(o *callOptions) { o.orig = &orig }
}

func WithEncoding(encoding string) Option {
	return func(o *callOptions) { o.encoding = &encoding }
}

func WithMaxParts(maxParts int) Option {
	return func(o *callOptions) { o.maxParts = &maxParts }
}

// WithTimeout bounds each individual HTTP call.
func WithTimeout(timeout time.Duration) Option {
	return func(o *callOptions) { o.timeout = &timeout }
}

// WithDeadline bounds the whole wait loop. Without it a wait runs until the
// message arrives or ctx is done.
func WithDeadline(deadline time.Duration) Option {
	return func(o *callOptions) { o.deadline = &deadline }
}

// WithRegisteredDelivery asks the provider to track delivery and hand out a
// handle id. Enabled by default.
func WithRegisteredDelivery(enabled bool) Option {
	return func(o *callOptions) { o.registeredDelivery = &enabled }
}

// WithDebug simulates the send on the provider side. No handle id is returned.
func WithDebug(enabled bool) Option {
	return func(o *callOptions) { o.debug = &enabled }
}

// WithFailSilently turns communication and request errors into a none result.
func WithFailSilently(enabled bool) Option {
	return func(o *callOptions) { o.failSilently = &enabled }
}

// WithWait makes CheckState poll until the message has arrived.
func WithWait(enabled bool) Option {
	return func(o *callOptions) { o.wait = &enabled }
}

// WithConfig uses cfg instead of the client's configuration.
func WithConfig(cfg *Config) Option {
	return func(o *callOptions) { o.config = cfg }
}

// params is the effective parameter set of a single call.
type params struct {
	Values
	RegisteredDelivery bool
	Debug              bool
	FailSilently       bool
	Wait               bool
	// Deadline is zero for an unbounded wait.
	Deadline time.Duration
}

// resolve merges per-call options over configured values over library
// defaults, independently for every field.
func resolve(v Values, o callOptions) params {
	p := params{
		Values:             v,
		RegisteredDelivery: true,
	}

	p.Project = pick(o.project, v.Project, "")
	p.Orig = pick(o.orig, v.Orig, "")
	p.Encoding = pick(o.encoding, v.Encoding, DefaultEncoding)
	p.MaxParts = pick(o.maxParts, v.MaxParts, DefaultMaxParts)
	p.Timeout = pick(o.timeout, v.Timeout, DefaultTimeout)
	p.PutURL = pick(nil, v.PutURL, DefaultPutURL)
	p.StateURL = pick(nil, v.StateURL, DefaultStateURL)
	p.PollInterval = pick(nil, v.PollInterval, DefaultPollInterval)

	if o.deadline != nil && *o.deadline > 0 {
		p.Deadline = *o.deadline
	}
	if o.registeredDelivery != nil {
		p.RegisteredDelivery = *o.registeredDelivery
	}
	if o.debug != nil {
		p.Debug = *o.debug
	}
	if o.failSilently != nil {
		p.FailSilently = *o.failSilently
	}
	if o.wait != nil {
		p.Wait = *o.wait
	}

	return p
}

func pick[T comparable](override *T, configured, fallback T) T {
	if override != nil {
		return *override
	}
	var zero T
	if configured != zero {
		return configured
	}
	return fallback
}
