package device

import (
	"time"

	"github.com/e7canasta/sensorview/internal/errors"
)

const (
	// minStallTimeout is the shortest wait for a frame before a grab fails.
	minStallTimeout = time.Second

	// startStallTimeout covers sensor start-up before the first frame.
	startStallTimeout = 5 * time.Second
)

// stallGuard fails a grab that has waited too long for the device.
type stallGuard struct {
	timeout time.Duration
	since   time.Time
}

// newStallGuard allows three frame intervals at fps, at least
// minStallTimeout, and startStallTimeout while no frame was ever grabbed.
func newStallGuard(fps float64, first bool, now time.Time) *stallGuard {
	timeout := minStallTimeout
	if fps > 0 {
		if d := time.Duration(3 * float64(time.Second) / fps); d > timeout {
			timeout = d
		}
	}
	if first && timeout < startStallTimeout {
		timeout = startStallTimeout
	}
	return &stallGuard{timeout: timeout, since: now}
}

// check returns FRAME_GRAB once the device produced nothing for the timeout.
func (s *stallGuard) check(now time.Time) error {
	waited := now.Sub(s.since)
	if waited < s.timeout {
		return nil
	}
	return errors.NewWithContext(errors.ErrCodeFrameGrab, "device stalled, no frame received",
		map[string]any{"waited": waited.Round(time.Millisecond).String(), "timeout": s.timeout.String()})
}
