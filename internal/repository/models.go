package repository

import (
	"time"

	"github.com/kursadbilgin/plusserver-sms/internal/domain"
)

// DispatchModel is the persistence model for the dispatches table.
type DispatchModel struct {
	ID                 string        `gorm:"type:uuid;primaryKey"`
	RequestID          string        `gorm:"type:varchar(64);not null;uniqueIndex"`
	CorrelationID      string        `gorm:"type:varchar(64);not null"`
	Recipient          string        `gorm:"type:varchar(32);not null"`
	Body               string        `gorm:"type:text;not null"`
	Orig               string        `gorm:"type:varchar(16);not null;default:''"`
	Project            string        `gorm:"type:varchar(64);not null;default:''"`
	MaxParts           int           `gorm:"not null;default:0"`
	RegisteredDelivery bool          `gorm:"not null"`
	Debug              bool          `gorm:"not null"`
	Status             domain.Status `gorm:"type:varchar(20);not null"`
	HandleID           *string       `gorm:"type:varchar(64)"`
	DeliveryState      string        `gorm:"type:varchar(20);not null;default:''"`
	AttemptCount       int           `gorm:"not null;default:0"`
	LastError          *string       `gorm:"type:text"`
	NextRetryAt        *time.Time
	SentAt             *time.Time
	DeliveredAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (DispatchModel) TableName() string {
	return "dispatches"
}

// DispatchAttemptModel is the persistence model for dispatch_attempts.
type DispatchAttemptModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	DispatchID    string  `gorm:"type:uuid;not null;uniqueIndex:idx_attempts_dispatch_attempt,priority:1"`
	AttemptNumber int     `gorm:"not null;uniqueIndex:idx_attempts_dispatch_attempt,priority:2"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DispatchAttemptModel) TableName() string {
	return "dispatch_attempts"
}

func dispatchModelFromDomain(d *domain.Dispatch) *DispatchModel {
	if d == nil {
		return nil
	}

	return &DispatchModel{
		ID:                 d.ID,
		RequestID:          d.RequestID,
		CorrelationID:      d.CorrelationID,
		Recipient:          d.Recipient,
		Body:               d.Body,
		Orig:               d.Orig,
		Project:            d.Project,
		MaxParts:           d.MaxParts,
		RegisteredDelivery: d.RegisteredDelivery,
		Debug:              d.Debug,
		Status:             d.Status,
		HandleID:           d.HandleID,
		DeliveryState:      d.DeliveryState,
		AttemptCount:       d.AttemptCount,
		LastError:          d.LastError,
		NextRetryAt:        d.NextRetryAt,
		SentAt:             d.SentAt,
		DeliveredAt:        d.DeliveredAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func dispatchModelToDomain(m *DispatchModel) *domain.Dispatch {
	if m == nil {
		return nil
	}

	return &domain.Dispatch{
		ID:                 m.ID,
		RequestID:          m.RequestID,
		CorrelationID:      m.CorrelationID,
		Recipient:          m.Recipient,
		Body:               m.Body,
		Orig:               m.Orig,
		Project:            m.Project,
		MaxParts:           m.MaxParts,
		RegisteredDelivery: m.RegisteredDelivery,
		Debug:              m.Debug,
		Status:             m.Status,
		HandleID:           m.HandleID,
		DeliveryState:      m.DeliveryState,
		AttemptCount:       m.AttemptCount,
		LastError:          m.LastError,
		NextRetryAt:        m.NextRetryAt,
		SentAt:             m.SentAt,
		DeliveredAt:        m.DeliveredAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DispatchAttempt) *DispatchAttemptModel {
	if a == nil {
		return nil
	}

	return &DispatchAttemptModel{
		ID:            a.ID,
		DispatchID:    a.DispatchID,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DispatchAttemptModel) *domain.DispatchAttempt {
	if m == nil {
		return nil
	}

	return &domain.DispatchAttempt{
		ID:            m.ID,
		DispatchID:    m.DispatchID,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
