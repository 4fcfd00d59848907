package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retried operation. If set, only errors for which If
// returns true are retried; any other error is returned immediately.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	If          func(error) bool
}

// Do runs fn up to MaxAttempts times with a fixed delay between attempts.
func Do(ctx context.Context, config Config, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if config.If != nil && !config.If(err) {
				return err
			}
			if attempt == config.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(config.Delay):
				continue
			}
		}
		return nil
	}

	return lastErr
}
