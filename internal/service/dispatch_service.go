package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"github.com/kursadbilgin/plusserver-sms/internal/observability"
	"github.com/kursadbilgin/plusserver-sms/internal/queue"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	defaultMaxAttempts   = 3
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250

	reasonRetryExhausted = "retry_exhausted"
	reasonInvalid        = "invalid"
)

// Sender submits a message to the SMS gateway. *plusserver.Client implements it.
type Sender interface {
	Send(ctx context.Context, m *plusserver.Message, opts ...plusserver.Option) (plusserver.Outcome, error)
}

var _ Sender = (*plusserver.Client)(nil)

// DispatchService consumes send requests and submits them to the gateway.
type DispatchService struct {
	dispatches  repository.DispatchRepository
	attempts    repository.AttemptRepository
	consumer    queue.Consumer
	sender      Sender
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	maxAttempts int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewDispatchService(
	dispatches repository.DispatchRepository,
	attempts repository.AttemptRepository,
	consumer queue.Consumer,
	sender Sender,
	concurrency int,
	maxAttempts int,
	logger *zap.Logger,
) (*DispatchService, error) {
	if dispatches == nil {
		return nil, fmt.Errorf("dispatch repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		dispatches:  dispatches,
		attempts:    attempts,
		consumer:    consumer,
		sender:      sender,
		logger:      logger,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (s *DispatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the send queue until context cancellation.
func (s *DispatchService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.consumer == nil {
		return fmt.Errorf("consumer is required")
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *DispatchService) processMessage(ctx context.Context, msg queue.SendRequest) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	ctx = observability.WithRequestID(ctx, msg.RequestID)
	logger := observability.WithContextLogger(s.logger, ctx)

	candidate := dispatchFromRequest(msg, s.now().UTC())
	if err := candidate.Validate(); err != nil {
		logger.Warn("dropping invalid send request", zap.Error(err))
		if s.metrics != nil {
			s.metrics.IncDispatch("failed", reasonInvalid)
		}
		return nil
	}

	dispatch, err := s.dispatches.Claim(ctx, candidate, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to claim dispatch: %w", err)
	}
	// Nil means already sending, finished, or waiting for its retry; ack and skip.
	if dispatch == nil {
		logger.Info("send request not claimable, skipping")
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(queue.SendQueue)
		defer s.metrics.DecWorkerInFlight(queue.SendQueue)
	}

	// Bookkeeping after the gateway call must land even when shutdown
	// cancels ctx, or the row stays in SENDING.
	persistCtx := context.WithoutCancel(ctx)

	message := plusserver.NewMessage(dispatch.Recipient, dispatch.Body, messageOptions(dispatch)...)
	outcome, sendErr := s.sender.Send(ctx, message)

	if err := s.recordAttempt(persistCtx, dispatch, message, sendErr); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if sendErr == nil {
		var handleID *string
		deliveryState := message.State().String()
		if outcome.Kind == plusserver.OutcomeHandle {
			value := outcome.HandleID
			handleID = &value
			if deliveryState == "" {
				deliveryState = plusserver.StateNew.String()
			}
		}

		if err := s.dispatches.MarkSent(persistCtx, dispatch.ID, handleID, deliveryState, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to mark dispatch sent: %w", err)
		}
		logger.Info("sms accepted by gateway",
			zap.String("dispatchId", dispatch.ID),
			zap.String("outcome", outcome.String()),
			zap.Int("attempt", dispatch.AttemptCount),
		)
		if s.metrics != nil {
			s.metrics.IncDispatch("sent", "")
		}
		return nil
	}

	kind := plusserver.KindOf(sendErr)
	transient := kind == plusserver.KindCommunication
	if transient && dispatch.AttemptCount < s.maxAttempts {
		nextRetryAt := s.now().UTC().Add(s.computeRetryDelay(dispatch.AttemptCount))
		if err := s.dispatches.ScheduleRetry(persistCtx, dispatch.ID, sendErr.Error(), nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule dispatch retry: %w", err)
		}
		logger.Warn("sms send failed, retry scheduled",
			zap.String("dispatchId", dispatch.ID),
			zap.Int("attempt", dispatch.AttemptCount),
			zap.Time("nextRetryAt", nextRetryAt),
			zap.Error(sendErr),
		)
		if s.metrics != nil {
			s.metrics.IncDispatch("retry", kind.String())
			s.metrics.IncRedelivery(queue.SendQueue)
		}
		return nil
	}

	if err := s.dispatches.MarkFailed(persistCtx, dispatch.ID, sendErr.Error()); err != nil {
		return fmt.Errorf("failed to mark dispatch failed: %w", err)
	}

	reason := kind.String()
	fields := []zap.Field{
		zap.String("dispatchId", dispatch.ID),
		zap.Int("attempt", dispatch.AttemptCount),
		zap.Error(sendErr),
	}
	if transient {
		reason = reasonRetryExhausted
		fields = append(fields, s.attemptHistory(persistCtx, logger, dispatch.ID))
	}
	logger.Error("sms send failed", append(fields, zap.String("reason", reason))...)
	if s.metrics != nil {
		s.metrics.IncDispatch("failed", reason)
	}

	return nil
}

func (s *DispatchService) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *DispatchService) recordAttempt(
	ctx context.Context,
	dispatch *domain.Dispatch,
	message *plusserver.Message,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if resp := message.SubmitResponse(); resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if strings.TrimSpace(resp.Raw) != "" {
			value := resp.Raw
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var clientErr *plusserver.Error
		if errors.As(sendErr, &clientErr) && clientErr.StatusCode > 0 && statusCode == nil {
			value := clientErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DispatchAttempt{
		ID:            uuid.NewString(),
		DispatchID:    dispatch.ID,
		AttemptNumber: dispatch.AttemptCount,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}

// attemptHistory summarizes earlier gateway calls, e.g. "#1 503", "#2 no response".
func (s *DispatchService) attemptHistory(ctx context.Context, logger *zap.Logger, dispatchID string) zap.Field {
	attempts, err := s.attempts.ListByDispatchID(ctx, dispatchID)
	if err != nil {
		logger.Warn("failed to load attempt history", zap.Error(err))
		return zap.Skip()
	}

	history := make([]string, 0, len(attempts))
	for _, a := range attempts {
		result := "no response"
		if a.StatusCode != nil {
			result = strconv.Itoa(*a.StatusCode)
		}
		history = append(history, fmt.Sprintf("#%d %s", a.AttemptNumber, result))
	}
	return zap.Strings("attemptHistory", history)
}

func messageOptions(d *domain.Dispatch) []plusserver.Option {
	opts := []plusserver.Option{
		plusserver.WithRegisteredDelivery(d.RegisteredDelivery),
		plusserver.WithDebug(d.Debug),
	}
	if d.Orig != "" {
		opts = append(opts, plusserver.WithOrig(d.Orig))
	}
	if d.Project != "" {
		opts = append(opts, plusserver.WithProject(d.Project))
	}
	if d.MaxParts > 0 {
		opts = append(opts, plusserver.WithMaxParts(d.MaxParts))
	}
	return opts
}

func dispatchFromRequest(msg queue.SendRequest, now time.Time) *domain.Dispatch {
	return &domain.Dispatch{
		ID:                 uuid.NewString(),
		RequestID:          strings.TrimSpace(msg.RequestID),
		CorrelationID:      msg.CorrelationID,
		Recipient:          strings.TrimSpace(msg.Recipient),
		Body:               msg.Body,
		Orig:               msg.Orig,
		Project:            msg.Project,
		MaxParts:           msg.MaxParts,
		RegisteredDelivery: msg.Registered(),
		Debug:              msg.Debug,
		Status:             domain.StatusQueued,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func sendRequestFromDispatch(d domain.Dispatch) queue.SendRequest {
	msg := queue.SendRequest{
		RequestID:     d.RequestID,
		CorrelationID: d.CorrelationID,
		Recipient:     d.Recipient,
		Body:          d.Body,
		Orig:          d.Orig,
		Project:       d.Project,
		MaxParts:      d.MaxParts,
		Debug:         d.Debug,
	}
	msg.SetRegistered(d.RegisteredDelivery)
	return msg
}
