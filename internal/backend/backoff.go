package backend

import (
	"context"
	"time"
)

// Backoff produces the delay before each (re)connection attempt: the n-th
// consecutive failure waits (n^2) * InitialWait; after MaxRetries failures
// one long ReconnectionPause is taken and the counter starts over, so the
// attempts never terminate while the backend is running.
type Backoff struct {
	InitialWait       time.Duration
	MaxRetries        int
	ReconnectionPause time.Duration

	retries int
}

// Next returns the delay to sleep before the upcoming attempt and advances
// the counter. The first attempt gets a zero delay.
func (b *Backoff) Next() time.Duration {
	if b.retries >= b.MaxRetries {
		b.retries = 0
		return b.ReconnectionPause
	}
	d := time.Duration(b.retries*b.retries) * b.InitialWait
	b.retries++
	return d
}

// Reset clears the failure counter after a successful connection.
func (b *Backoff) Reset() {
	b.retries = 0
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
