package queue

import (
	"fmt"
	"strings"
)

// SendRequest is the broker payload asking the worker to send one SMS.
// RequestID identifies the request across redeliveries and retries.
type SendRequest struct {
	RequestID          string `json:"requestId"`
	CorrelationID      string `json:"correlationId,omitempty"`
	Recipient          string `json:"recipient"`
	Body               string `json:"body"`
	Orig               string `json:"orig,omitempty"`
	Project            string `json:"project,omitempty"`
	MaxParts           int    `json:"maxParts,omitempty"`
	RegisteredDelivery *bool  `json:"registeredDelivery,omitempty"`
	Debug              bool   `json:"debug,omitempty"`
}

// Registered reports whether delivery tracking was requested. Payloads
// without the field are tracked.
func (m SendRequest) Registered() bool {
	return m.RegisteredDelivery == nil || *m.RegisteredDelivery
}

func (m *SendRequest) SetRegistered(enabled bool) {
	m.RegisteredDelivery = &enabled
}

func (m SendRequest) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("requestId is required")
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if m.MaxParts < 0 {
		return fmt.Errorf("maxParts must not be negative")
	}
	return nil
}
