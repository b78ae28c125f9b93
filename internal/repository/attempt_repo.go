package repository

import (
	"context"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttemptRepository stores one row per gateway call made for a dispatch.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DispatchAttempt) error
	ListByDispatchID(ctx context.Context, dispatchID string) ([]domain.DispatchAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

// Create records a; recording the same attempt number twice keeps the first row.
func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DispatchAttempt) error {
	model := attemptModelFromDomain(a)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dispatch_id"}, {Name: "attempt_number"}},
			DoNothing: true,
		}).
		Create(model).Error
}

// ListByDispatchID returns the attempts of a dispatch, oldest first.
func (r *GormAttemptRepo) ListByDispatchID(ctx context.Context, dispatchID string) ([]domain.DispatchAttempt, error) {
	var models []DispatchAttemptModel
	if err := r.db.WithContext(ctx).
		Where("dispatch_id = ?", dispatchID).
		Order("attempt_number").
		Find(&models).Error; err != nil {
		return nil, err
	}

	attempts := make([]domain.DispatchAttempt, len(models))
	for i := range models {
		attempts[i] = *attemptModelToDomain(&models[i])
	}
	return attempts, nil
}
