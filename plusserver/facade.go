package plusserver

import (
	"context"
	"sync"
)

var (
	defaultConfig = NewConfig()

	defaultClientOnce sync.Once
	defaultClient     *Client
)

// Default returns the process-wide Config used when no WithConfig option is given.
func Default() *Config {
	return defaultConfig
}

// Configure updates the process-wide Config.
func Configure(settings ...Setting) {
	defaultConfig.Update(settings...)
}

// DefaultClient returns the client used by the package-level functions.
func DefaultClient() *Client {
	defaultClientOnce.Do(func() {
		defaultClient = NewClient(defaultConfig)
	})
	return defaultClient
}

// clientFor returns the default client, rebound to the Config of a
// WithConfig option when there is one.
func clientFor(opts []Option) *Client {
	client := DefaultClient()
	if co := newCallOptions(opts...); co.config != nil && co.config != client.config {
		rebound := *client
		rebound.config = co.config
		return &rebound
	}
	return client
}

// SendSMS sends body to recipient. The outcome holds the handle id of a
// registered send, or only the accepted flag for unregistered and debug sends.
func SendSMS(ctx context.Context, recipient, body string, opts ...Option) (Outcome, error) {
	return NewMessage(recipient, body).Send(ctx, opts...)
}

// CheckSMSState returns the current state of handleID.
func CheckSMSState(ctx context.Context, handleID string, opts ...Option) (State, error) {
	return clientFor(opts).CheckSMSState(ctx, handleID, opts...)
}

// WaitUntilArrived polls handleID until it is arrived. Without WithDeadline
// it may block forever.
func WaitUntilArrived(ctx context.Context, handleID string, opts ...Option) (State, error) {
	return clientFor(opts).WaitUntilArrived(ctx, handleID, opts...)
}
