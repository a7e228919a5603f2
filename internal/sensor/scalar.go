package sensor

import (
	"context"
	"sync/atomic"
	"time"
)

// Scalar simulates a slow sensor: every Read takes delay and returns a
// counter incremented by one.
type Scalar struct {
	name    string
	delay   time.Duration
	counter atomic.Int64
}

// NewScalar creates a scalar sensor with the given per-read delay.
func NewScalar(name string, delay time.Duration) *Scalar {
	return &Scalar{name: name, delay: delay}
}

func (s *Scalar) Name() string { return s.name }

// Delay returns the per-read delay.
func (s *Scalar) Delay() time.Duration { return s.delay }

// Read sleeps for the configured delay and returns the incremented counter.
// An interrupted sleep returns ctx.Err() and leaves the counter unchanged.
func (s *Scalar) Read(ctx context.Context) (int64, error) {
	if err := sleepCtx(ctx, s.delay); err != nil {
		return s.counter.Load(), err
	}
	return s.counter.Add(1), nil
}

// Count returns the number of completed reads.
func (s *Scalar) Count() int64 { return s.counter.Load() }

func (s *Scalar) Close() error { return nil }
