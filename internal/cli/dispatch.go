package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"github.com/kursadbilgin/plusserver-sms/internal/repository"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const defaultListLimit = 20

// Store reads the dispatch table written by sms-worker.
type Store interface {
	GetByRequestID(ctx context.Context, requestID string) (*domain.Dispatch, error)
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Dispatch, error)
	ListAttempts(ctx context.Context, dispatchID string) ([]domain.DispatchAttempt, error)
	Close() error
}

type gormStore struct {
	*repository.GormDispatchRepo
	attempts *repository.GormAttemptRepo
	db       *gorm.DB
}

// NewStore wraps db. Close closes db.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		GormDispatchRepo: repository.NewGormDispatchRepo(db),
		attempts:         repository.NewGormAttemptRepo(db),
		db:               db,
	}
}

func (s *gormStore) ListAttempts(ctx context.Context, dispatchID string) ([]domain.DispatchAttempt, error) {
	return s.attempts.ListByDispatchID(ctx, dispatchID)
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type attemptResult struct {
	Number     int       `json:"number"`
	StatusCode *int      `json:"statusCode,omitempty"`
	Error      *string   `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

type dispatchResult struct {
	RequestID     string          `json:"requestId"`
	Recipient     string          `json:"recipient"`
	Status        string          `json:"status"`
	HandleID      string          `json:"handleId,omitempty"`
	DeliveryState string          `json:"deliveryState,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
	LastError     string          `json:"lastError,omitempty"`
	NextRetryAt   *time.Time      `json:"nextRetryAt,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Attempts      []attemptResult `json:"attempts,omitempty"`
}

func newDispatchResult(d domain.Dispatch, attempts []domain.DispatchAttempt) dispatchResult {
	r := dispatchResult{
		RequestID:     d.RequestID,
		Recipient:     d.Recipient,
		Status:        d.Status.String(),
		DeliveryState: d.DeliveryState,
		AttemptCount:  d.AttemptCount,
		NextRetryAt:   d.NextRetryAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.HandleID != nil {
		r.HandleID = *d.HandleID
	}
	if d.LastError != nil {
		r.LastError = *d.LastError
	}
	for _, a := range attempts {
		r.Attempts = append(r.Attempts, attemptResult{
			Number:     a.AttemptNumber,
			StatusCode: a.StatusCode,
			Error:      a.Error,
			At:         a.CreatedAt,
		})
	}
	return r
}

// line is the one-line summary used by dispatch list.
func (r dispatchResult) line() string {
	state := r.DeliveryState
	if state == "" {
		state = "-"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", r.RequestID, r.Status, state, r.UpdatedAt.UTC().Format(time.RFC3339))
}

func (r dispatchResult) text() string {
	var b strings.Builder
	row := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%-10s %s\n", name, value)
		}
	}
	row("request", r.RequestID)
	row("recipient", r.Recipient)
	row("status", r.Status)
	row("handle", r.HandleID)
	row("state", r.DeliveryState)
	row("attempts", fmt.Sprint(r.AttemptCount))
	row("error", r.LastError)
	if r.NextRetryAt != nil {
		row("retry at", r.NextRetryAt.UTC().Format(time.RFC3339))
	}
	for _, a := range r.Attempts {
		result := "no response"
		if a.StatusCode != nil {
			result = fmt.Sprint(*a.StatusCode)
		}
		if a.Error != nil {
			result += " " + *a.Error
		}
		fmt.Fprintf(&b, "#%d %s %s\n", a.Number, a.At.UTC().Format(time.RFC3339), result)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newDispatchCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Inspect SMS queued through the dispatch worker",
		Long: `Read the dispatch table of sms-worker. The database is taken from
DATABASE_DSN.`,
	}
	cmd.AddCommand(newDispatchShowCommand(root))
	cmd.AddCommand(newDispatchListCommand(root))
	return cmd
}

func newDispatchShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a dispatch and its gateway attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.store()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			ctx := cmd.Context()
			d, err := store.GetByRequestID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("request %s: %w", args[0], err)
			}
			attempts, err := store.ListAttempts(ctx, d.ID)
			if err != nil {
				return err
			}

			result := newDispatchResult(*d, attempts)
			return render(cmd.OutOrStdout(), root.json, result, result.text())
		},
	}
}

func newDispatchListCommand(root *rootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the latest dispatches in a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseStatusFromString(status)
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}

			store, err := root.store()
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			dispatches, err := store.ListByStatus(cmd.Context(), st, limit)
			if err != nil {
				return err
			}

			results := make([]dispatchResult, 0, len(dispatches))
			lines := make([]string, 0, len(dispatches))
			for _, d := range dispatches {
				r := newDispatchResult(d, nil)
				results = append(results, r)
				lines = append(lines, r.line())
			}
			if len(lines) == 0 {
				lines = append(lines, "no dispatches")
			}
			return render(cmd.OutOrStdout(), root.json, results, strings.Join(lines, "\n"))
		},
	}

	cmd.Flags().StringVar(&status, "status", domain.StatusFailed.String(), "QUEUED, SENDING, SENT, DELIVERED or FAILED")
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "Maximum number of dispatches")

	return cmd
}
