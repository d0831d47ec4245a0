// Package retry computes backoff delays and performs cancellable sleeps for
// the connect loop and the supervisor.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy describes a capped backoff with additive jitter.
type Policy struct {
	Base   time.Duration
	Jitter time.Duration // jitter is drawn from [0, Jitter)
	Cap    time.Duration
	// Rand returns a value in [0,1). Nil uses math/rand.
	Rand func() float64
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return time.Duration(r() * float64(p.Jitter))
}

func (p Policy) capped(d float64) time.Duration {
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}

// Linear returns min(base*attempt + jitter, cap). Attempts count from 1.
func (p Policy) Linear(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base)*float64(attempt) + float64(p.jitter())
	return p.capped(d)
}

// Exponential returns min(base*2^attempt + jitter, cap). Attempts count from 0.
func (p Policy) Exponential(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.Base)*math.Pow(2, float64(attempt)) + float64(p.jitter())
	return p.capped(d)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
