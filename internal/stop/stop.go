// Package stop provides the process-wide stop and fatal flags.
//
// Both flags are monotone: they go from false to true exactly once and are
// never reset. A Controller is created once per run and passed by
// construction to every worker and to the renderer.
package stop

import (
	"context"
	"sync"
	"sync/atomic"
)

// Controller carries the stop flag, the fatal flag and the first fatal error.
type Controller struct {
	stopped atomic.Bool
	fatal   atomic.Bool

	once   sync.Once
	mu     sync.Mutex
	err    error
	reason string

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a controller whose context derives from parent.
// Cancelling parent (e.g. on SIGINT) is observed as a stop request.
func New(parent context.Context) *Controller {
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{ctx: ctx, cancel: cancel}
	context.AfterFunc(ctx, func() { c.Stop("context done") })
	return c
}

// Stop sets the stop flag. Only the first reason is retained.
func (c *Controller) Stop(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		c.stopped.Store(true)
		c.cancel()
	})
}

// Fatal sets the fatal flag and records err if it is the first one.
// It does not stop the run by itself; the renderer observes the flag and
// drives the shutdown sequence.
func (c *Controller) Fatal(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.fatal.Store(true)
}

// Stopped reports whether a stop was requested.
func (c *Controller) Stopped() bool { return c.stopped.Load() }

// IsFatal reports whether a fatal error occurred.
func (c *Controller) IsFatal() bool { return c.fatal.Load() }

// Err returns the first fatal error, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Reason returns the reason passed to the first Stop call.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done is closed once a stop was requested.
func (c *Controller) Done() <-chan struct{} { return c.ctx.Done() }

// Context is cancelled once a stop was requested. Blocking reads take it.
func (c *Controller) Context() context.Context { return c.ctx }
