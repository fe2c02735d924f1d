package utils

import (
	"context"
	"time"
)

// Backoff retries with exponentially growing pauses: base, 2*base, 4*base...
type Backoff struct {
	base       time.Duration
	maxRetries int
	max        time.Duration
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries, max: 30 * time.Second}
}

// Do calls fn until it succeeds, the retries run out or ctx is done. fn gets
// the 0-based attempt number. The last error from fn is returned.
func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		if err = fn(ctx, i); err == nil {
			return nil
		}
		if i == b.maxRetries {
			break
		}
		t := time.NewTimer(b.delay(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

func (b Backoff) delay(i int) time.Duration {
	d := time.Duration(1<<i) * b.base
	if d <= 0 || d > b.max {
		return b.max
	}
	return d
}
