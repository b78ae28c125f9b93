package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"go.uber.org/zap"
)

type fakeStateChecker struct {
	checkFn func(ctx context.Context, handleID string) (plusserver.State, error)
}

func (f *fakeStateChecker) CheckSMSState(ctx context.Context, handleID string, opts ...plusserver.Option) (plusserver.State, error) {
	if f.checkFn != nil {
		return f.checkFn(ctx, handleID)
	}
	return plusserver.StateNew, nil
}

func sentDispatch(id, handle, state string) domain.Dispatch {
	return domain.Dispatch{
		ID:            id,
		RequestID:     "r-" + id,
		Status:        domain.StatusSent,
		HandleID:      &handle,
		DeliveryState: state,
	}
}

type deliveryUpdate struct {
	id          string
	state       string
	status      domain.Status
	deliveredAt *time.Time
}

func TestNewDeliveryTrackerAppliesDefaults(t *testing.T) {
	t.Parallel()

	if _, err := NewDeliveryTracker(nil, &fakeStateChecker{}, 0, 0, nil); err == nil {
		t.Fatal("expected error when dispatch repository is nil")
	}
	if _, err := NewDeliveryTracker(&fakeDispatchRepo{}, nil, 0, 0, nil); err == nil {
		t.Fatal("expected error when state checker is nil")
	}

	tracker, err := NewDeliveryTracker(&fakeDispatchRepo{}, &fakeStateChecker{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewDeliveryTracker() error = %v", err)
	}
	if tracker.interval != defaultTrackInterval {
		t.Fatalf("interval = %s, want %s", tracker.interval, defaultTrackInterval)
	}
	if tracker.limit != defaultTrackLimit {
		t.Fatalf("limit = %d, want %d", tracker.limit, defaultTrackLimit)
	}
	if tracker.logger == nil {
		t.Fatal("logger should default to nop")
	}
}

func TestDeliveryTrackerScanDueUpdatesStates(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	updates := make([]deliveryUpdate, 0, 3)
	repo := &fakeDispatchRepo{
		listTrackableFn: func(ctx context.Context, limit int) ([]domain.Dispatch, error) {
			return []domain.Dispatch{
				sentDispatch("d1", "h1", "new"),
				sentDispatch("d2", "h2", "processed"),
				sentDispatch("d3", "h3", "new"),
				sentDispatch("d4", "h4", "new"),
			}, nil
		},
		updateDeliveryStateFn: func(ctx context.Context, id string, state string, status domain.Status, deliveredAt *time.Time) error {
			updates = append(updates, deliveryUpdate{id: id, state: state, status: status, deliveredAt: deliveredAt})
			return nil
		},
	}
	checker := &fakeStateChecker{
		checkFn: func(ctx context.Context, handleID string) (plusserver.State, error) {
			switch handleID {
			case "h1":
				return plusserver.StateArrived, nil
			case "h2":
				return plusserver.StateError, nil
			case "h3":
				return plusserver.StateRetry, nil
			}
			return plusserver.StateNew, nil
		},
	}

	tracker, err := NewDeliveryTracker(repo, checker, time.Second, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryTracker() error = %v", err)
	}
	tracker.now = func() time.Time { return now }

	if err := tracker.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	// d4 is unchanged and must not be written.
	if len(updates) != 3 {
		t.Fatalf("updates = %d, want 3", len(updates))
	}
	if updates[0].id != "d1" || updates[0].status != domain.StatusDelivered || updates[0].deliveredAt == nil || !updates[0].deliveredAt.Equal(now) {
		t.Fatalf("arrived update = %+v", updates[0])
	}
	if updates[1].id != "d2" || updates[1].status != domain.StatusFailed || updates[1].deliveredAt != nil {
		t.Fatalf("error update = %+v", updates[1])
	}
	if updates[2].id != "d3" || updates[2].state != "retry" || updates[2].status != domain.StatusSent {
		t.Fatalf("retry update = %+v", updates[2])
	}
}

func TestDeliveryTrackerScanDueContinuesOnCheckError(t *testing.T) {
	t.Parallel()

	updated := make([]string, 0, 1)
	repo := &fakeDispatchRepo{
		listTrackableFn: func(ctx context.Context, limit int) ([]domain.Dispatch, error) {
			return []domain.Dispatch{
				sentDispatch("d1", "h1", "new"),
				sentDispatch("d2", "h2", "new"),
			}, nil
		},
		updateDeliveryStateFn: func(ctx context.Context, id string, state string, status domain.Status, deliveredAt *time.Time) error {
			updated = append(updated, id)
			return nil
		},
	}
	checker := &fakeStateChecker{
		checkFn: func(ctx context.Context, handleID string) (plusserver.State, error) {
			if handleID == "h1" {
				return plusserver.StateNone, &plusserver.Error{Kind: plusserver.KindCommunication, Message: "state request failed"}
			}
			return plusserver.StateProcessed, nil
		},
	}

	tracker, err := NewDeliveryTracker(repo, checker, time.Second, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryTracker() error = %v", err)
	}

	if err := tracker.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if len(updated) != 1 || updated[0] != "d2" {
		t.Fatalf("updated = %v, want [d2]", updated)
	}
}

func TestDeliveryTrackerScanDueRepositoryError(t *testing.T) {
	t.Parallel()

	repo := &fakeDispatchRepo{
		listTrackableFn: func(ctx context.Context, limit int) ([]domain.Dispatch, error) {
			return nil, errors.New("db unavailable")
		},
	}

	tracker, err := NewDeliveryTracker(repo, &fakeStateChecker{}, time.Second, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryTracker() error = %v", err)
	}

	if err := tracker.scanDue(context.Background()); err == nil {
		t.Fatal("expected scanDue() error")
	}
}

func TestDeliveryTrackerScanDueWithGatewayClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if r.PostForm.Get("handle") != "abc123" {
			t.Errorf("handle = %q, want abc123", r.PostForm.Get("handle"))
		}
		_, _ = w.Write([]byte("REQUEST OK\nstate = arrived"))
	}))
	t.Cleanup(server.Close)

	client := plusserver.NewClient(plusserver.NewConfig(
		plusserver.SetCredentials("user", "secret"),
		plusserver.SetStateURL(server.URL+"/sms-state.php"),
	))

	var got deliveryUpdate
	repo := &fakeDispatchRepo{
		listTrackableFn: func(ctx context.Context, limit int) ([]domain.Dispatch, error) {
			return []domain.Dispatch{sentDispatch("d1", "abc123", "new")}, nil
		},
		updateDeliveryStateFn: func(ctx context.Context, id string, state string, status domain.Status, deliveredAt *time.Time) error {
			got = deliveryUpdate{id: id, state: state, status: status, deliveredAt: deliveredAt}
			return nil
		},
	}

	tracker, err := NewDeliveryTracker(repo, client, time.Second, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryTracker() error = %v", err)
	}

	if err := tracker.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if got.id != "d1" || got.state != "arrived" || got.status != domain.StatusDelivered || got.deliveredAt == nil {
		t.Fatalf("update = %+v", got)
	}
}

func TestDeliveryTrackerStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker, err := NewDeliveryTracker(&fakeDispatchRepo{}, &fakeStateChecker{}, time.Second, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryTracker() error = %v", err)
	}

	if err := tracker.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
