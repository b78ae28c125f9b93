package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runEvery calls scan once right away and then on every tick until ctx is
// done. Scan errors are logged and never stop the loop.
func runEvery(ctx context.Context, interval time.Duration, logger *zap.Logger, name string, scan func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	run := func() {
		if err := scan(ctx); err != nil && ctx.Err() == nil {
			logger.Error(name+" scan failed", zap.Error(err))
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		}
	}
}
