// Package worker runs one acquisition loop per sensor.
//
// A worker repeatedly reads its sensor and publishes each sample into its
// latest-value slot until the stop flag is set. It never sleeps after a
// successful read; the sensor's own Read latency paces the loop.
package worker

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/sensorview/internal/sensor"
	"github.com/e7canasta/sensorview/internal/slot"
	"github.com/e7canasta/sensorview/internal/stop"
)

// Hooks observe worker activity (metrics). Nil fields are skipped.
type Hooks struct {
	OnRead    func(name string, d time.Duration, err error)
	OnPublish func(name string, dropped bool)
}

// Worker owns a sensor and the write side of its slot.
type Worker[T any] struct {
	sensor  sensor.Sensor[T]
	slot    *slot.Slot[T]
	ctrl    *stop.Controller
	backoff BackoffConfig
	hooks   Hooks
	logger  *slog.Logger

	started atomic.Bool
	done    chan struct{}

	reads    atomic.Uint64
	failures atomic.Uint64
}

// Option configures a Worker.
type Option func(*options)

type options struct {
	backoff BackoffConfig
	hooks   Hooks
}

// WithBackoff overrides the error backoff.
func WithBackoff(b BackoffConfig) Option {
	return func(o *options) { o.backoff = b }
}

// WithHooks installs activity hooks.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// New creates a worker. It does not start it.
func New[T any](s sensor.Sensor[T], sl *slot.Slot[T], ctrl *stop.Controller, opts ...Option) *Worker[T] {
	o := options{backoff: DefaultBackoff()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Worker[T]{
		sensor:  s,
		slot:    sl,
		ctrl:    ctrl,
		backoff: o.backoff,
		hooks:   o.hooks,
		logger:  slog.Default().With("worker", s.Name()),
		done:    make(chan struct{}),
	}
}

// Name returns the sensor name.
func (w *Worker[T]) Name() string { return w.sensor.Name() }

// Start runs the loop on a new goroutine. Calling Start twice is a no-op.
func (w *Worker[T]) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run()
}

// Wait blocks until the loop has exited and the sensor was closed.
// Waiting on a worker that was never started returns immediately.
func (w *Worker[T]) Wait() {
	if !w.started.Load() {
		return
	}
	<-w.done
}

// Done is closed when the loop has exited.
func (w *Worker[T]) Done() <-chan struct{} { return w.done }

// Reads returns the number of successful reads.
func (w *Worker[T]) Reads() uint64 { return w.reads.Load() }

// Failures returns the number of failed reads.
func (w *Worker[T]) Failures() uint64 { return w.failures.Load() }

func (w *Worker[T]) run() {
	defer close(w.done)
	defer w.slot.Close()
	defer func() {
		if err := w.sensor.Close(); err != nil {
			w.logger.Warn("worker: sensor close failed", "error", err)
		}
	}()

	ctx := w.ctrl.Context()
	attempt := 0

	w.logger.Debug("worker: started")

	for !w.ctrl.Stopped() {
		start := time.Now()
		v, err := w.sensor.Read(ctx)
		if w.hooks.OnRead != nil {
			w.hooks.OnRead(w.sensor.Name(), time.Since(start), err)
		}

		if err != nil {
			if w.ctrl.Stopped() {
				break
			}
			w.failures.Add(1)
			attempt++
			delay := w.backoff.Delay(attempt)
			w.logger.Debug("worker: read failed, backing off", "attempt", attempt, "delay", delay, "error", err)

			t := time.NewTimer(delay)
			select {
			case <-w.ctrl.Done():
				t.Stop()
			case <-t.C:
			}
			continue
		}

		attempt = 0
		w.reads.Add(1)
		dropped := w.slot.Publish(v)
		if w.hooks.OnPublish != nil {
			w.hooks.OnPublish(w.sensor.Name(), dropped)
		}
	}

	w.logger.Info("worker: done", "reads", w.reads.Load(), "failures", w.failures.Load())
}
