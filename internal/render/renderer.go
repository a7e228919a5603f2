// Package render implements the aggregation and render loop.
//
// The renderer is the only reader of every slot. It runs on the goroutine
// that owns the display (the locked main OS thread) and, once per cycle:
//
//  1. drains each scalar slot and the camera slot (non-blocking)
//  2. composites the overlay onto a copy of the held frame
//  3. shows it and notifies observers
//  4. polls for a quit key and checks the stop and fatal flags
//
// then sleeps 1/fps.
package render

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/sensorview/internal/display"
	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/logging"
	"github.com/e7canasta/sensorview/internal/sensor"
	"github.com/e7canasta/sensorview/internal/slot"
	"github.com/e7canasta/sensorview/internal/stop"
	"github.com/e7canasta/sensorview/internal/types"
)

const (
	// keyPollTimeout is how long each cycle waits for a key press.
	keyPollTimeout = time.Millisecond

	// textInset is the overlay distance from the left and bottom edges.
	textInset = 10

	DefaultFPS               = 15
	DefaultFirstFrameTimeout = 5 * time.Second
)

// ExitReason tells why Run returned.
type ExitReason string

const (
	ExitQuitKey ExitReason = "quit key"
	ExitFatal   ExitReason = "fatal error"
	ExitStopped ExitReason = "stop requested"
)

// Observer receives a snapshot after every cycle. It runs on the render
// goroutine and must not block.
type Observer interface {
	Observe(Snapshot)
}

// Hooks observe render activity (metrics). Nil fields are skipped.
type Hooks struct {
	OnRender func(d time.Duration)
	OnSkip   func()
}

// Config configures the renderer.
type Config struct {
	Window string
	FPS    float64

	// Policy decides whether a missing first frame eventually escalates.
	Policy sensor.FailurePolicy

	// FirstFrameTimeout is how long the fatal policy tolerates having
	// no frame at all before raising the fatal flag.
	FirstFrameTimeout time.Duration
}

// Renderer drains slots and drives the display.
type Renderer struct {
	cfg     Config
	scalars []*slot.Slot[int64]
	camera  *slot.Slot[*types.Frame]
	disp    display.Display
	ctrl    *stop.Controller
	latch   *logging.Latch
	comp    *display.Compositor
	hooks   Hooks

	observers []Observer
	fpsBits   atomic.Uint64

	startedAt time.Time
	cycle     uint64
	renders   atomic.Uint64
	skips     atomic.Uint64

	mu    sync.Mutex
	state DisplayState
	last  Snapshot
}

// New creates a renderer over the given slots. latch logs render failures
// edge-triggered.
func New(cfg Config, scalars []*slot.Slot[int64], camera *slot.Slot[*types.Frame],
	disp display.Display, ctrl *stop.Controller, latch *logging.Latch) *Renderer {
	if cfg.Window == "" {
		cfg.Window = display.WindowName
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Policy == "" {
		cfg.Policy = sensor.PolicyFatal
	}
	if cfg.FirstFrameTimeout <= 0 {
		cfg.FirstFrameTimeout = DefaultFirstFrameTimeout
	}

	r := &Renderer{
		cfg:       cfg,
		scalars:   scalars,
		camera:    camera,
		disp:      disp,
		ctrl:      ctrl,
		latch:     latch,
		comp:      display.NewCompositor(display.Yellow),
		startedAt: time.Now(),
		state:     DisplayState{Scalars: make([]int64, len(scalars))},
	}
	r.fpsBits.Store(math.Float64bits(cfg.FPS))
	return r
}

// AddObserver registers o. Must be called before Run.
func (r *Renderer) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// SetHooks installs activity hooks. Must be called before Run.
func (r *Renderer) SetHooks(h Hooks) {
	r.hooks = h
}

// SetFPS changes the render rate; safe to call from any goroutine.
func (r *Renderer) SetFPS(fps float64) error {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return errors.New(errors.ErrCodeInvalidConfig, fmt.Sprintf("fps must be positive, got %v", fps))
	}
	old := math.Float64frombits(r.fpsBits.Swap(math.Float64bits(fps)))
	if old != fps {
		slog.Info("render: fps changed", "old", old, "new", fps)
	}
	return nil
}

// FPS returns the current render rate.
func (r *Renderer) FPS() float64 {
	return math.Float64frombits(r.fpsBits.Load())
}

// Snapshot returns the state observed by the last completed cycle.
func (r *Renderer) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Renders returns the number of frames shown.
func (r *Renderer) Renders() uint64 { return r.renders.Load() }

// Skips returns the number of cycles skipped for lack of a frame.
func (r *Renderer) Skips() uint64 { return r.skips.Load() }

// Run loops until a quit key, the fatal flag or a stop request. It does not
// close the display nor set the stop flag; the caller owns shutdown.
func (r *Renderer) Run() ExitReason {
	slog.Info("render: loop started", "fps", r.FPS(), "window", r.cfg.Window, "sensors", len(r.scalars))

	for {
		if reason, done := r.Step(); done {
			slog.Info("render: loop exiting", "reason", string(reason),
				"renders", r.renders.Load(), "skips", r.skips.Load())
			return reason
		}

		t := time.NewTimer(time.Duration(float64(time.Second) / r.FPS()))
		select {
		case <-r.ctrl.Done():
			t.Stop()
		case <-t.C:
		}
	}
}

// Step runs one render cycle without the trailing sleep.
func (r *Renderer) Step() (ExitReason, bool) {
	now := time.Now()

	r.mu.Lock()
	for i, s := range r.scalars {
		if v, ok := s.TryTake(); ok {
			r.state.Scalars[i] = v
		}
	}
	if f, ok := r.camera.TryTake(); ok && f != nil {
		r.state.Frame = f
	}
	frame := r.state.Frame
	text := OverlayText(r.state.Scalars)
	r.cycle++
	snap := r.state.snapshot(r.cycle, now)
	r.last = snap
	r.mu.Unlock()

	if frame == nil {
		r.skip(now)
	} else {
		r.render(frame, text)
	}

	for _, o := range r.observers {
		o.Observe(snap)
	}

	if key, ok := r.disp.PollKey(keyPollTimeout); ok && display.IsQuit(key) {
		return ExitQuitKey, true
	}
	if r.ctrl.IsFatal() {
		return ExitFatal, true
	}
	if r.ctrl.Stopped() {
		return ExitStopped, true
	}
	return "", false
}

func (r *Renderer) render(frame *types.Frame, text string) {
	start := time.Now()

	if !frame.Valid() {
		r.latch.Fail(errors.NewWithContext(errors.ErrCodeRenderPrecondition, "frame buffer is malformed",
			map[string]any{"seq": frame.Seq, "size": len(frame.Data)}))
		return
	}

	img := r.comp.Compose(frame, text, image.Pt(textInset, frame.Height-textInset))
	if err := r.disp.Show(r.cfg.Window, img); err != nil {
		r.latch.Fail(errors.Wrap(errors.ErrCodeInternal, "show failed", err))
		return
	}

	r.latch.Ok()
	r.renders.Add(1)
	if r.hooks.OnRender != nil {
		r.hooks.OnRender(time.Since(start))
	}
}

// skip handles a cycle with no frame ever received.
func (r *Renderer) skip(now time.Time) {
	r.skips.Add(1)
	if r.hooks.OnSkip != nil {
		r.hooks.OnSkip()
	}
	if r.ctrl.IsFatal() {
		// the failing component already logged the cause
		return
	}
	r.latch.Fail(errors.New(errors.ErrCodeRenderPrecondition, "frame is none"))

	waited := now.Sub(r.startedAt)
	if r.cfg.Policy == sensor.PolicyFatal && waited > r.cfg.FirstFrameTimeout && !r.ctrl.IsFatal() {
		r.ctrl.Fatal(errors.NewWithContext(errors.ErrCodeRenderPrecondition,
			"no frame received from camera",
			map[string]any{"waited": waited.String()}))
	}
}
