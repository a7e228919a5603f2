package logging

import (
	"log/slog"
	"sync"

	"github.com/e7canasta/sensorview/internal/errors"
)

// Latch reports failures edge-triggered: the first failure after a success
// (or after construction) is logged, repeats are suppressed until Ok re-arms
// the latch.
//
// Safe for concurrent use, although each call site normally owns its latch.
type Latch struct {
	name    string
	loggers []*slog.Logger

	// OnLog, when set, is called for every failure that was actually logged.
	OnLog func(code errors.ErrorCode)

	mu         sync.Mutex
	failing    bool
	logged     uint64
	suppressed uint64
}

// NewLatch creates a latch logging under component name to every logger.
func NewLatch(name string, loggers ...*slog.Logger) *Latch {
	nonNil := make([]*slog.Logger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			nonNil = append(nonNil, l)
		}
	}
	return &Latch{name: name, loggers: nonNil}
}

// Fail records a failure. It returns true when the failure was logged
// (success→failure transition) and false when it was suppressed.
func (l *Latch) Fail(err error) bool {
	l.mu.Lock()
	if l.failing {
		l.suppressed++
		l.mu.Unlock()
		return false
	}
	l.failing = true
	l.logged++
	onLog := l.OnLog
	l.mu.Unlock()

	code := errors.CodeOf(err)
	for _, lg := range l.loggers {
		lg.Error(l.name+": "+errors.MessageOf(err), "code", string(code), "error", err)
	}
	if onLog != nil {
		onLog(code)
	}
	return true
}

// Ok records a success. It returns true if the latch was re-armed.
func (l *Latch) Ok() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.failing {
		return false
	}
	l.failing = false
	return true
}

// Failing reports whether the latch is currently in the failed state.
func (l *Latch) Failing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failing
}

// Logged returns how many failures were logged.
func (l *Latch) Logged() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logged
}

// Suppressed returns how many repeated failures were not logged.
func (l *Latch) Suppressed() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}
