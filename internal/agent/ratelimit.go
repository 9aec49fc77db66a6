package agent

import (
	"context"
	"sync"
	"time"
)

// Throttle is a token bucket in front of remote backend calls, so a tool
// loop cannot burn through a hosted API's rate limit.
type Throttle struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	perSec float64
	last   time.Time
}

// NewThrottle allows burst calls at once, refilled at perMinute.
func NewThrottle(burst int, perMinute float64) *Throttle {
	if burst <= 0 {
		burst = 5
	}
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Throttle{
		tokens: float64(burst),
		burst:  float64(burst),
		perSec: perMinute / 60,
		last:   time.Now(),
	}
}

// Wait blocks until a call may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := time.Now()
		t.tokens = min(t.burst, t.tokens+now.Sub(t.last).Seconds()*t.perSec)
		t.last = now
		if t.tokens >= 1 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - t.tokens) / t.perSec * float64(time.Second))
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
