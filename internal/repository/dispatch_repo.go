package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DispatchRepository interface {
	GetByRequestID(ctx context.Context, requestID string) (*domain.Dispatch, error)
	Claim(ctx context.Context, d *domain.Dispatch, now time.Time) (*domain.Dispatch, error)
	MarkSent(ctx context.Context, id string, handleID *string, deliveryState string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ScheduleRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Dispatch, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	ListTrackable(ctx context.Context, limit int) ([]domain.Dispatch, error)
	UpdateDeliveryState(ctx context.Context, id string, state string, status domain.Status, deliveredAt *time.Time) error
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Dispatch, error)
}

type GormDispatchRepo struct {
	db *gorm.DB
}

func NewGormDispatchRepo(db *gorm.DB) *GormDispatchRepo {
	return &GormDispatchRepo{db: db}
}

func (r *GormDispatchRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.Dispatch, error) {
	var model DispatchModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return dispatchModelToDomain(&model), nil
}

// Claim moves the dispatch of d.RequestID to SENDING and counts the attempt.
// An unknown request is inserted as SENDING. It returns nil when the
// dispatch exists but is not claimable: already being sent, finished, or
// waiting for its retry time.
func (r *GormDispatchRepo) Claim(ctx context.Context, d *domain.Dispatch, now time.Time) (*domain.Dispatch, error) {
	if d == nil {
		return nil, domain.ErrValidation
	}

	model := dispatchModelFromDomain(d)
	model.Status = domain.StatusSending
	model.AttemptCount = 1
	model.NextRetryAt = nil

	created := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoNothing: true,
		}).
		Create(model)
	if created.Error != nil {
		return nil, created.Error
	}
	if created.RowsAffected == 1 {
		return dispatchModelToDomain(model), nil
	}

	result := r.db.WithContext(ctx).
		Model(&DispatchModel{}).
		Where("request_id = ? AND status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			d.RequestID, domain.StatusQueued, now).
		Updates(map[string]any{
			"status":        domain.StatusSending,
			"next_retry_at": nil,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return r.GetByRequestID(ctx, d.RequestID)
}

func (r *GormDispatchRepo) MarkSent(ctx context.Context, id string, handleID *string, deliveryState string, sentAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":         domain.StatusSent,
		"handle_id":      handleID,
		"delivery_state": deliveryState,
		"sent_at":        sentAt,
		"last_error":     nil,
	})
}

func (r *GormDispatchRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.update(ctx, id, map[string]any{
		"status":        domain.StatusFailed,
		"last_error":    reason,
		"next_retry_at": nil,
	})
}

func (r *GormDispatchRepo) ScheduleRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":        domain.StatusQueued,
		"last_error":    reason,
		"next_retry_at": nextRetryAt,
	})
}

func (r *GormDispatchRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Dispatch, error) {
	var models []DispatchModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusQueued, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return dispatchesToDomain(models), nil
}

func (r *GormDispatchRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{"next_retry_at": nil})
}

// ListTrackable returns sent dispatches with a handle id whose delivery
// state is not final, oldest first.
func (r *GormDispatchRepo) ListTrackable(ctx context.Context, limit int) ([]domain.Dispatch, error) {
	var models []DispatchModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND handle_id IS NOT NULL AND handle_id <> '' AND delivery_state NOT IN ?",
			domain.StatusSent, []string{"arrived", "error"}).
		Order("sent_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return dispatchesToDomain(models), nil
}

func (r *GormDispatchRepo) UpdateDeliveryState(ctx context.Context, id string, state string, status domain.Status, deliveredAt *time.Time) error {
	updates := map[string]any{
		"delivery_state": state,
		"status":         status,
	}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	return r.update(ctx, id, updates)
}

// ListByStatus returns the most recently updated dispatches in status.
func (r *GormDispatchRepo) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Dispatch, error) {
	var models []DispatchModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return dispatchesToDomain(models), nil
}

func (r *GormDispatchRepo) update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&DispatchModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func dispatchesToDomain(models []DispatchModel) []domain.Dispatch {
	dispatches := make([]domain.Dispatch, 0, len(models))
	for i := range models {
		dispatches = append(dispatches, *dispatchModelToDomain(&models[i]))
	}
	return dispatches
}
