package harness

import (
	"context"
	"fmt"
	"log"
)

// Establish navigates the target to the configured URL, retrying with a
// fixed delay while the application is still starting up. It returns the
// number of attempts made; on exhaustion the error wraps
// ErrTargetUnreachable so the controller can decide how to proceed.
func Establish(ctx context.Context, target Target, cfg RunConfig) (int, error) {
	url := cfg.TargetURL()
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("connect canceled: %w", err)
		}

		err := target.Navigate(ctx, url)
		if err == nil {
			log.Printf("Connected to %s on attempt %d", url, attempt)
			return attempt, nil
		}

		lastErr = err
		log.Printf("Connection attempt %d/%d to %s failed: %v", attempt, retries, url, err)

		if attempt < retries {
			sleep(ctx, cfg.ConnectRetryDelay)
		}
	}

	return retries, fmt.Errorf("%w: no response from %s after %d attempts: %v",
		ErrTargetUnreachable, url, retries, lastErr)
}
