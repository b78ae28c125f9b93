package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"github.com/kursadbilgin/plusserver-sms/internal/observability"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"go.uber.org/zap"
)

const (
	defaultTrackInterval = 15 * time.Second
	defaultTrackLimit    = 100
)

// StateChecker queries the gateway for the delivery state of a handle id.
type StateChecker interface {
	CheckSMSState(ctx context.Context, handleID string, opts ...plusserver.Option) (plusserver.State, error)
}

var _ StateChecker = (*plusserver.Client)(nil)

// DeliveryTracker periodically refreshes the delivery state of sent dispatches.
type DeliveryTracker struct {
	dispatches repository.DispatchRepository
	checker    StateChecker
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	limit      int
	now        func() time.Time
}

func NewDeliveryTracker(
	dispatches repository.DispatchRepository,
	checker StateChecker,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*DeliveryTracker, error) {
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("state checker is required")
	}
	if interval <= 0 {
		interval = defaultTrackInterval
	}
	if limit <= 0 {
		limit = defaultTrackLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryTracker{
		dispatches: dispatches,
		checker:    checker,
		logger:     logger,
		interval:   interval,
		limit:      limit,
		now:        time.Now,
	}, nil
}

func (t *DeliveryTracker) SetMetrics(metrics *observability.Metrics) {
	if t == nil {
		return
	}
	t.metrics = metrics
}

func (t *DeliveryTracker) Start(ctx context.Context) error {
	return runEvery(ctx, t.interval, t.logger, "delivery tracker", t.scanDue)
}

func (t *DeliveryTracker) scanDue(ctx context.Context) error {
	trackable, err := t.dispatches.ListTrackable(ctx, t.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch trackable dispatches: %w", err)
	}

	for i := range trackable {
		dispatch := trackable[i]
		if !dispatch.Trackable() {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger := observability.WithContextLogger(t.logger, dispatchContext(ctx, dispatch)).
			With(zap.String("dispatchId", dispatch.ID))

		state, err := t.checker.CheckSMSState(ctx, *dispatch.HandleID)
		if err != nil {
			logger.Warn("delivery state check failed",
				zap.String("handleId", *dispatch.HandleID),
				zap.String("kind", plusserver.KindOf(err).String()),
				zap.Error(err),
			)
			continue
		}
		if state == plusserver.StateNone || state.String() == dispatch.DeliveryState {
			continue
		}

		status, deliveredAt := t.statusFor(state)
		if err := t.dispatches.UpdateDeliveryState(ctx, dispatch.ID, state.String(), status, deliveredAt); err != nil {
			logger.Error("failed to update delivery state",
				zap.String("state", state.String()),
				zap.Error(err),
			)
			continue
		}

		logger.Info("delivery state changed",
			zap.String("from", dispatch.DeliveryState),
			zap.String("to", state.String()),
		)
		if t.metrics != nil {
			t.metrics.IncDeliveryState(state.String())
		}
	}

	return nil
}

func (t *DeliveryTracker) statusFor(state plusserver.State) (domain.Status, *time.Time) {
	switch state {
	case plusserver.StateArrived:
		deliveredAt := t.now().UTC()
		return domain.StatusDelivered, &deliveredAt
	case plusserver.StateError:
		return domain.StatusFailed, nil
	}
	return domain.StatusSent, nil
}

// dispatchContext carries the ids of the request that created d, so tracking
// logs line up with the send logs.
func dispatchContext(ctx context.Context, d domain.Dispatch) context.Context {
	if d.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, d.CorrelationID)
	}
	return observability.WithRequestID(ctx, d.RequestID)
}
