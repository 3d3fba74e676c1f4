package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffProgression(t *testing.T) {
	b := &Backoff{
		InitialWait:       10 * time.Millisecond,
		MaxRetries:        3,
		ReconnectionPause: time.Minute,
	}

	// quadratic in the number of prior failures, first attempt is immediate
	assert.Equal(t, time.Duration(0), b.Next())
	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 40*time.Millisecond, b.Next())

	// max retries reached: one long pause, then start over
	assert.Equal(t, time.Minute, b.Next())
	assert.Equal(t, time.Duration(0), b.Next())
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoffReset(t *testing.T) {
	b := &Backoff{InitialWait: 10 * time.Millisecond, MaxRetries: 5, ReconnectionPause: time.Minute}

	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, time.Duration(0), b.Next())
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, sleep(ctx, time.Hour))
	assert.False(t, sleep(ctx, 0))
	assert.True(t, sleep(context.Background(), 0))
}
