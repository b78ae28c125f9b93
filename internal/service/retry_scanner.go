package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"github.com/kursadbilgin/plusserver-sms/internal/observability"
	"github.com/kursadbilgin/plusserver-sms/internal/queue"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-enqueues dispatches whose retry time has come.
type RetryScanner struct {
	dispatches repository.DispatchRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	interval   time.Duration
	limit      int
	now        func() time.Time
}

func NewRetryScanner(
	dispatches repository.DispatchRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		dispatches: dispatches,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		limit:      limit,
		now:        time.Now,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	return runEvery(ctx, s.interval, s.logger, "retry scanner", s.scanDue)
}

// scanDue re-enqueues due retries in batches of s.limit. A full batch that
// was published completely is followed by another one.
func (s *RetryScanner) scanDue(ctx context.Context) error {
	for {
		due, err := s.dispatches.GetDueForRetry(ctx, s.now().UTC(), s.limit)
		if err != nil {
			return fmt.Errorf("failed to fetch due retries: %w", err)
		}

		requeued := 0
		for _, dispatch := range due {
			if s.requeue(ctx, dispatch) {
				requeued++
			}
		}
		if requeued > 0 {
			s.logger.Debug("due retries re-enqueued", zap.Int("count", requeued))
		}

		if len(due) < s.limit || requeued < len(due) || ctx.Err() != nil {
			return nil
		}
	}
}

func (s *RetryScanner) requeue(ctx context.Context, dispatch domain.Dispatch) bool {
	logger := observability.WithContextLogger(s.logger, dispatchContext(ctx, dispatch)).
		With(zap.String("dispatchId", dispatch.ID))

	if err := s.publisher.Publish(ctx, queue.SendQueue, sendRequestFromDispatch(dispatch)); err != nil {
		logger.Error("failed to enqueue dispatch retry", zap.Error(err))
		return false
	}

	// Left set, the row would be published again on the next tick.
	if err := s.dispatches.ClearNextRetryAt(ctx, dispatch.ID); err != nil {
		logger.Error("failed to clear next retry timestamp after enqueue", zap.Error(err))
		return false
	}
	return true
}
