// Package slot implements the latest-value mailbox that conveys the most
// recent sample from one producer to one consumer.
//
// # Philosophy
//
// "Drop samples, never queue. Freshness > Completeness."
//
// A slot holds at most one sample. Publishing over an unconsumed sample
// replaces it (last-write-wins) and counts a drop. Sample loss under a fast
// producer and a slow consumer is expected and healthy.
//
// # Design
//
//  1. Non-blocking Publish: always succeeds, never waits for the consumer
//  2. Non-blocking TryTake: consumes at most once per publish
//  3. Optional blocking Wait(ctx): sync.Cond mailbox, no busy-wait
//  4. Fresh() notification channel, coalesced to one pending signal
//  5. Operational stats: publish/take/drop counters, idle detection
//
// # Usage
//
// Producer (acquisition worker):
//
//	s := slot.New[int64]("sensor-1")
//	for {
//	    v, err := sensor.Read(ctx)
//	    ...
//	    s.Publish(v) // ~1µs, overwrites unconsumed value
//	}
//
// Consumer (renderer, fixed cadence):
//
//	if v, ok := s.TryTake(); ok {
//	    state.Scalars[i] = v
//	}
//
// # Thread Safety
//
// All methods are safe for concurrent use. The intended topology is one
// writer and one reader per slot.
//
// # Lifecycle
//
// After Close():
//   - Publish() becomes a no-op
//   - TryTake() still drains a value published before Close
//   - Wait() returns ErrClosed once the slot is empty
package slot
