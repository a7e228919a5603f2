package slot

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Wait after Close when no value is pending.
var ErrClosed = errors.New("slot: closed")

// idleThreshold defines when a slot is considered idle (no publish activity).
//
// The slowest reference sensor publishes once per second; 30s is far beyond
// any healthy producer.
const idleThreshold = 30 * time.Second

// Slot is a capacity-1 overwrite buffer with sync.Cond blocking semantics.
//
// Architecture:
//   - Single-cell buffer (value + full flag)
//   - Overwrite policy (new value replaces unconsumed one)
//   - Blocking consume (sync.Cond.Wait) for Wait, non-blocking for TryTake
//   - Drop tracking (consecutiveDrops, dropped)
type Slot[T any] struct {
	name string

	// --- Mailbox State ---

	mu    sync.Mutex
	cond  *sync.Cond
	value T
	full  bool
	fresh chan struct{} // one pending token iff full (kept in sync under mu)

	// --- Operational Stats ---

	published        uint64
	taken            uint64
	dropped          uint64
	consecutiveDrops uint64
	lastPublishedAt  time.Time
	lastTakenAt      time.Time
	createdAt        time.Time

	// --- Lifecycle ---

	closed bool
}

// New creates an empty slot identified by name (used in stats and metrics).
func New[T any](name string) *Slot[T] {
	s := &Slot[T]{
		name:      name,
		fresh:     make(chan struct{}, 1),
		createdAt: time.Now(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Name returns the slot identifier.
func (s *Slot[T]) Name() string {
	return s.name
}

// Publish stores v, replacing any unconsumed value.
//
// Returns true when an unconsumed value was overwritten (a drop).
// Publishing to a closed slot is a no-op and returns false.
func (s *Slot[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	dropped := s.full
	if dropped {
		s.dropped++
		s.consecutiveDrops++
	}

	s.value = v
	s.full = true
	s.published++
	s.lastPublishedAt = time.Now()

	// Coalesced notification: at most one pending token.
	select {
	case s.fresh <- struct{}{}:
	default:
	}

	s.cond.Signal()
	return dropped
}

// TryTake consumes the pending value if there is one.
//
// Returns the zero value and false when nothing was published since the
// last take.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		var zero T
		return zero, false
	}
	return s.takeLocked(), true
}

// Wait blocks until a value is available, ctx is done or the slot is closed.
func (s *Slot[T]) Wait(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.full && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}

	var zero T
	if s.full {
		return s.takeLocked(), nil
	}
	if s.closed {
		return zero, ErrClosed
	}
	return zero, ctx.Err()
}

// takeLocked consumes the value. Caller holds mu and has checked full.
func (s *Slot[T]) takeLocked() T {
	v := s.value
	var zero T
	s.value = zero
	s.full = false
	s.taken++
	s.consecutiveDrops = 0
	s.lastTakenAt = time.Now()

	select {
	case <-s.fresh:
	default:
	}
	return v
}

// Fresh returns a channel that holds a token while a value is pending.
// Receiving the token does not consume the value; follow with TryTake.
func (s *Slot[T]) Fresh() <-chan struct{} {
	return s.fresh
}

// Close stops accepting publishes and wakes blocked waiters. Idempotent.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cond.Broadcast()
}

// Stats is a snapshot of slot operational state.
type Stats struct {
	Name string

	// Published counts accepted publishes.
	Published uint64

	// Taken counts successful takes (TryTake or Wait).
	Taken uint64

	// Dropped counts values overwritten before being taken.
	// Expected when the producer is faster than the consumer.
	Dropped uint64

	// ConsecutiveDrops is the current streak of overwrites, reset on take.
	ConsecutiveDrops uint64

	LastPublishedAt time.Time
	LastTakenAt     time.Time

	// Pending reports an unconsumed value.
	Pending bool

	// IsIdle indicates no publish for longer than 30s.
	IsIdle bool

	Closed bool
}

// Stats returns a consistent snapshot.
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastPublishedAt
	if last.IsZero() {
		last = s.createdAt
	}

	return Stats{
		Name:             s.name,
		Published:        s.published,
		Taken:            s.taken,
		Dropped:          s.dropped,
		ConsecutiveDrops: s.consecutiveDrops,
		LastPublishedAt:  s.lastPublishedAt,
		LastTakenAt:      s.lastTakenAt,
		Pending:          s.full,
		IsIdle:           time.Since(last) > idleThreshold,
		Closed:           s.closed,
	}
}
