// Package wait provides a small polling helper for provider resources that
// take a moment to become available after creation.
package wait

import (
	"context"
	"fmt"
	"time"
)

// ErrTimeout is returned when the condition does not hold before the deadline
var ErrTimeout = fmt.Errorf("wait: condition not met before deadline")

// Until polls cond every interval until it reports true, returns an error, or
// the timeout passes. The condition is checked once immediately.
func Until(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := cond(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ctx.Err()
		case <-ticker.C:
			ok, err := cond(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}
