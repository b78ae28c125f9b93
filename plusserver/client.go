package plusserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	endpointPut   = "put"
	endpointState = "state"

	limiterKey = "plusserver"
	userAgent  = "plusserver-sms-go"
)

// Limiter throttles provider calls.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Recorder observes every provider call. result is "ok" or an ErrorKind name.
type Recorder interface {
	ObserveRequest(endpoint string, result string, elapsed time.Duration)
}

// Client talks to the provider's put and state endpoints.
type Client struct {
	config   *Config
	http     *resty.Client
	logger   *zap.Logger
	limiter  Limiter
	recorder Recorder
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type ClientOption func(*Client)

// UseHTTPClient replaces the underlying resty client. The client is used as
// given: its retry policy and logger are left to the caller.
func UseHTTPClient(client *resty.Client) ClientOption {
	return func(c *Client) { c.http = client }
}

func UseLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func UseLimiter(limiter Limiter) ClientOption {
	return func(c *Client) { c.limiter = limiter }
}

func UseRecorder(recorder Recorder) ClientOption {
	return func(c *Client) { c.recorder = recorder }
}

// NewClient returns a client bound to cfg. A nil cfg gets an empty isolated Config.
func NewClient(cfg *Config, opts ...ClientOption) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &Client{
		config: cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleepWithContext,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(c)
		}
	}

	if c.http == nil {
		c.http = resty.New().
			SetHeader("User-Agent", userAgent).
			SetRetryCount(0).
			SetLogger(c.logger.Sugar())
	}

	return c
}

func (c *Client) Config() *Config {
	return c.config
}

// SendSMS sends a transient message. See Send.
func (c *Client) SendSMS(ctx context.Context, recipient, body string, opts ...Option) (Outcome, error) {
	return c.Send(ctx, NewMessage(recipient, body), opts...)
}

// Send submits m and records the outcome on it. With fail-silently set,
// communication and request errors yield a none outcome and a nil error.
func (c *Client) Send(ctx context.Context, m *Message, opts ...Option) (Outcome, error) {
	if m == nil {
		return Outcome{}, validationError("message is required")
	}

	p := c.params(m.optionsWith(opts))
	resp, err := c.submit(ctx, p, m.Recipient, m.Body)
	if err != nil {
		m.reset()
		return Outcome{}, c.suppress(p, err)
	}

	outcome := submitOutcome(resp, p)
	if outcome.Kind == OutcomeAccepted && p.RegisteredDelivery && !p.Debug {
		c.logger.Warn("registered delivery accepted without handle id",
			zap.String("recipient", m.Recipient),
		)
	}
	m.sent(resp, outcome)

	return outcome, nil
}

// CheckSMSState queries the state of handleID once, or polls until arrival
// when WithWait(true) is given.
func (c *Client) CheckSMSState(ctx context.Context, handleID string, opts ...Option) (State, error) {
	p := c.params(opts)
	st, _, err := c.checkState(ctx, p, handleID)
	if err != nil {
		return StateNone, c.suppress(p, err)
	}
	return st, nil
}

// WaitUntilArrived polls the state of handleID until it is arrived.
//
// Without WithDeadline the loop only ends on arrival, on an error or when
// ctx is done: a message that never arrives blocks the caller forever.
func (c *Client) WaitUntilArrived(ctx context.Context, handleID string, opts ...Option) (State, error) {
	opts = append(opts[:len(opts):len(opts)], WithWait(true))
	return c.CheckSMSState(ctx, handleID, opts...)
}

// CheckState refreshes the state of a sent message.
func (c *Client) CheckState(ctx context.Context, m *Message, opts ...Option) (State, error) {
	if m == nil {
		return StateNone, validationError("message is required")
	}

	handleID := m.HandleID()
	if handleID == "" {
		return StateNone, configurationError("message has no handle id, send it with registered delivery first")
	}

	p := c.params(m.optionsWith(opts))
	st, resp, err := c.checkState(ctx, p, handleID)
	if err != nil {
		m.stateFailed()
		return StateNone, c.suppress(p, err)
	}
	m.checked(resp, st)

	return st, nil
}

// PutSMS submits a message and returns the raw provider response.
// A suppressed failure returns nil, nil.
func (c *Client) PutSMS(ctx context.Context, recipient, body string, opts ...Option) (*Response, error) {
	p := c.params(opts)
	resp, err := c.submit(ctx, p, recipient, body)
	if err != nil {
		return nil, c.suppress(p, err)
	}
	return resp, nil
}

// QuerySMSState issues a single state query and returns the raw provider response.
func (c *Client) QuerySMSState(ctx context.Context, handleID string, opts ...Option) (*Response, error) {
	p := c.params(opts)
	_, resp, err := c.queryState(ctx, p, handleID)
	if err != nil {
		return nil, c.suppress(p, err)
	}
	return resp, nil
}

func (c *Client) params(opts []Option) params {
	co := newCallOptions(opts...)
	cfg := c.config
	if co.config != nil {
		cfg = co.config
	}
	return resolve(cfg.Values(), co)
}

func (c *Client) suppress(p params, err error) error {
	if p.FailSilently && suppressible(err) {
		c.logger.Warn("provider error suppressed", zap.Error(err))
		return nil
	}
	return err
}

func (c *Client) checkState(ctx context.Context, p params, handleID string) (State, *Response, error) {
	if p.Wait {
		return c.waitUntilArrived(ctx, p, handleID)
	}
	return c.queryState(ctx, p, handleID)
}

func (c *Client) submit(ctx context.Context, p params, recipient, body string) (*Response, error) {
	if err := checkCredentials(p); err != nil {
		return nil, err
	}
	dest, err := validateSubmit(p, recipient, body)
	if err != nil {
		return nil, err
	}

	form := map[string]string{
		"dest":                dest,
		"data":                body,
		"debug":               flag(p.Debug),
		"project":             p.Project,
		"registered_delivery": flag(p.RegisteredDelivery),
		"enc":                 p.Encoding,
		"maxparts":            strconv.Itoa(p.MaxParts),
	}
	if p.Orig != "" {
		form["orig"] = p.Orig
	}

	c.logger.Debug("submitting sms",
		zap.String("recipient", dest),
		zap.Int("parts", Parts(body)),
		zap.Bool("registeredDelivery", p.RegisteredDelivery),
		zap.Bool("debug", p.Debug),
	)

	return c.post(ctx, p, endpointPut, p.PutURL, form)
}

func (c *Client) queryState(ctx context.Context, p params, handleID string) (State, *Response, error) {
	if err := checkCredentials(p); err != nil {
		return StateNone, nil, err
	}
	if strings.TrimSpace(handleID) == "" {
		return StateNone, nil, configurationError("unable to check state of unsent message, handle id is required")
	}

	resp, err := c.post(ctx, p, endpointState, p.StateURL, map[string]string{"handle": handleID})
	if err != nil {
		return StateNone, nil, err
	}

	st, err := parseStateResponse(resp)
	if err != nil {
		c.logger.Error("provider returned unknown state",
			zap.String("handleId", handleID),
			zap.String("state", resp.State()),
		)
		return StateNone, nil, err
	}

	return st, resp, nil
}

func (c *Client) post(ctx context.Context, p params, endpoint, url string, form map[string]string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// The timeout covers the limiter wait as well as the request.
	reqCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(reqCtx, limitKey(p.Username)); err != nil {
			return nil, communicationError("rate limiter wait failed", err)
		}
	}

	start := c.now()
	raw, err := c.http.R().
		SetContext(reqCtx).
		SetBasicAuth(p.Username, p.Password).
		SetFormData(form).
		Post(url)
	elapsed := c.now().Sub(start)
	if err != nil {
		return nil, c.fail(endpoint, elapsed, communicationError(endpoint+" request failed", err))
	}

	statusCode := raw.StatusCode()
	body := raw.String()
	c.logger.Debug("provider response",
		zap.String("endpoint", endpoint),
		zap.Int("status", statusCode),
		zap.Duration("elapsed", elapsed),
	)

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, c.fail(endpoint, elapsed, requestError(statusCode, providerErrorMessage(statusCode, body)))
	}

	resp := ParseResponse(body)
	resp.StatusCode = statusCode
	if err := checkResponse(resp); err != nil {
		return nil, c.fail(endpoint, elapsed, err)
	}

	c.observe(endpoint, "ok", elapsed)
	return resp, nil
}

func (c *Client) fail(endpoint string, elapsed time.Duration, err error) error {
	c.logger.Error("provider call failed",
		zap.String("endpoint", endpoint),
		zap.Duration("elapsed", elapsed),
		zap.Bool("timeout", IsTimeout(err)),
		zap.Error(err),
	)
	c.observe(endpoint, KindOf(err).String(), elapsed)
	return err
}

func (c *Client) observe(endpoint, result string, elapsed time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveRequest(endpoint, result, elapsed)
	}
}

func providerErrorMessage(statusCode int, body string) string {
	if text := ParseResponse(body).ErrorText(); text != "" {
		return text
	}
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// limitKey scopes throttling to the gateway account, so clients sharing a
// login share its budget.
func limitKey(username string) string {
	if username == "" {
		return limiterKey
	}
	return limiterKey + ":" + username
}
