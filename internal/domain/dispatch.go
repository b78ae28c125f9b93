package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a dispatch.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// IsFinal reports whether no further provider call is made for the dispatch.
func (s Status) IsFinal() bool {
	return s == StatusDelivered || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

const (
	MaxRecipientLength = 32
	// MaxBodyLength bounds what is accepted for queueing; the gateway limit
	// depends on max parts and is checked by the client.
	MaxBodyLength = 1600
)

// Dispatch is a queued SMS and its delivery bookkeeping.
type Dispatch struct {
	ID                 string
	RequestID          string
	CorrelationID      string
	Recipient          string
	Body               string
	Orig               string
	Project            string
	MaxParts           int
	RegisteredDelivery bool
	Debug              bool
	Status             Status
	HandleID           *string
	DeliveryState      string
	AttemptCount       int
	LastError          *string
	NextRetryAt        *time.Time
	SentAt             *time.Time
	DeliveredAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (d *Dispatch) Validate() error {
	if strings.TrimSpace(d.RequestID) == "" {
		return fmt.Errorf("%w: request id is required", ErrValidation)
	}
	if strings.TrimSpace(d.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if len(d.Recipient) > MaxRecipientLength {
		return fmt.Errorf("%w: recipient exceeds %d characters", ErrValidation, MaxRecipientLength)
	}
	if strings.TrimSpace(d.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if bodyLen := len([]rune(d.Body)); bodyLen > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, bodyLen)
	}
	if d.MaxParts < 0 {
		return fmt.Errorf("%w: max parts must not be negative", ErrValidation)
	}
	if d.Status != "" && !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, d.Status)
	}
	return nil
}

// Trackable reports whether the delivery tracker should still poll the gateway.
func (d *Dispatch) Trackable() bool {
	if d.Status != StatusSent || d.HandleID == nil || *d.HandleID == "" {
		return false
	}
	switch d.DeliveryState {
	case "arrived", "error":
		return false
	}
	return true
}
