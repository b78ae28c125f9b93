package domain

import "time"

// DispatchAttempt records a single submission of a dispatch to the gateway.
type DispatchAttempt struct {
	ID            string
	DispatchID    string
	AttemptNumber int
	StatusCode    *int
	ResponseBody  *string
	Error         *string
	CreatedAt     time.Time
}
