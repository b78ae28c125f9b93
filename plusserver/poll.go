package plusserver

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// waitUntilArrived queries the state of handleID until it is arrived.
//
// p.Deadline bounds the whole loop; each query is additionally bounded by
// p.Timeout, capped to the time left. A zero deadline never expires.
func (c *Client) waitUntilArrived(ctx context.Context, p params, handleID string) (State, *Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := c.logger.With(zap.String("handleId", handleID))
	start := c.now()
	remaining := func() time.Duration {
		return p.Deadline - c.now().Sub(start)
	}

	for attempt := 1; ; attempt++ {
		call := p
		if p.Deadline > 0 {
			left := remaining()
			if left <= 0 {
				return StateNone, nil, deadlineError(p.Deadline)
			}
			if call.Timeout <= 0 || left < call.Timeout {
				call.Timeout = left
			}
		}

		st, resp, err := c.queryState(ctx, call, handleID)
		if err != nil {
			// A query cut short by the capped timeout means the deadline ran out.
			if p.Deadline > 0 && remaining() <= 0 && IsTimeout(err) {
				return StateNone, nil, deadlineError(p.Deadline)
			}
			return StateNone, nil, err
		}

		elapsed := c.now().Sub(start)
		switch st {
		case StateArrived:
			logger.Debug("sms arrived",
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", elapsed),
			)
			return st, resp, nil
		case StateError:
			return StateNone, nil, requestError(resp.StatusCode, "provider reported delivery error")
		}

		logger.Debug("sms not arrived yet",
			zap.String("state", st.String()),
			zap.Int("attempts", attempt),
			zap.Duration("elapsed", elapsed),
		)

		wait := p.PollInterval
		if p.Deadline > 0 {
			left := remaining()
			if left <= 0 {
				return StateNone, nil, deadlineError(p.Deadline)
			}
			if wait > left {
				wait = left
			}
		}

		if err := c.sleep(ctx, wait); err != nil {
			return StateNone, nil, communicationError("wait for arrival interrupted", err)
		}
	}
}

func deadlineError(deadline time.Duration) *Error {
	return communicationError("message did not arrive within "+deadline.String(), ErrDeadlineExceeded)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
