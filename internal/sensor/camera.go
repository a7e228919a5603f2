package sensor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/sensorview/internal/device"
	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/logging"
	"github.com/e7canasta/sensorview/internal/stop"
	"github.com/e7canasta/sensorview/internal/types"
)

// FailurePolicy decides what a camera failure does to the run.
type FailurePolicy string

const (
	// PolicyFatal releases the device and raises the fatal flag.
	PolicyFatal FailurePolicy = "fatal"
	// PolicyRetry releases the device and re-opens it on the next Read.
	// The acquisition worker's backoff spaces the attempts.
	PolicyRetry FailurePolicy = "retry"
)

// ParseFailurePolicy validates a policy name.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyFatal, PolicyRetry:
		return FailurePolicy(s), nil
	default:
		return "", errors.New(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown camera failure policy %q (want fatal or retry)", s))
	}
}

// ErrReleased is returned by Read after a fatal failure released the device.
var ErrReleased = stderrors.New("camera: device released")

// CameraConfig holds the requested capture parameters.
type CameraConfig struct {
	Index  int
	Width  int
	Height int
	Policy FailurePolicy
}

// Camera is a sensor producing frames from an imaging device.
//
// Open and grab failures share one edge-triggered latch: the first failure
// is logged, repeats are suppressed until a frame is grabbed again. A
// re-open alone does not re-arm the latch.
type Camera struct {
	dev    device.Device
	cfg    CameraConfig
	ctrl   *stop.Controller
	latch  *logging.Latch
	logger *slog.Logger

	mu       sync.Mutex
	opened   bool
	released bool // fatal policy: no further opens
	res      types.Resolution
	opens    uint64
}

// NewCamera constructs the camera sensor and opens the device.
//
// An open failure is not returned: it is logged through latch and handled
// per cfg.Policy, so the acquisition worker always starts and can be joined.
func NewCamera(ctx context.Context, dev device.Device, cfg CameraConfig, ctrl *stop.Controller, latch *logging.Latch) *Camera {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFatal
	}
	c := &Camera{
		dev:    dev,
		cfg:    cfg,
		ctrl:   ctrl,
		latch:  latch,
		logger: slog.Default().With("sensor", "camera", "index", cfg.Index),
	}

	c.mu.Lock()
	_ = c.openLocked(ctx)
	c.mu.Unlock()
	return c
}

func (c *Camera) Name() string { return fmt.Sprintf("camera-%d", c.cfg.Index) }

// Read grabs one frame, re-opening the device first under the retry policy.
func (c *Camera) Read(ctx context.Context) (*types.Frame, error) {
	c.mu.Lock()
	if !c.opened {
		if c.released {
			c.mu.Unlock()
			return nil, ErrReleased
		}
		if err := c.openLocked(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()

	frame, err := c.dev.Grab(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.HasCode(err, errors.ErrCodeFrameGrab) {
			err = errors.Wrap(errors.ErrCodeFrameGrab, "no image from camera", err)
		}
		c.fail(err)
		return nil, err
	}

	c.latch.Ok()
	return frame, nil
}

// openLocked opens the device; caller holds mu.
func (c *Camera) openLocked(ctx context.Context) error {
	err := c.dev.Open(ctx, c.cfg.Index, c.cfg.Width, c.cfg.Height)
	if err != nil {
		if !errors.HasCode(err, errors.ErrCodeDeviceOpen) {
			err = errors.WrapWithContext(errors.ErrCodeDeviceOpen,
				fmt.Sprintf("no camera found with index %d", c.cfg.Index), err,
				map[string]any{"index": c.cfg.Index})
		}
		c.failLocked(err)
		return err
	}

	c.opened = true
	c.opens++
	c.res = c.dev.Resolution()
	c.logger.Info("camera: opened",
		"requested", types.Resolution{Width: c.cfg.Width, Height: c.cfg.Height}.String(),
		"actual", c.res.String(),
		"policy", string(c.cfg.Policy),
	)
	return nil
}

func (c *Camera) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(err)
}

// failLocked logs edge-triggered, releases the device and applies the
// failure policy; caller holds mu.
func (c *Camera) failLocked(err error) {
	c.latch.Fail(err)

	if rerr := c.dev.Release(); rerr != nil {
		c.logger.Warn("camera: release failed", "error", rerr)
	}
	c.opened = false

	if c.cfg.Policy == PolicyFatal {
		c.released = true
		c.ctrl.Fatal(err)
	}
}

// Resolution returns the resolution reported by the last successful open.
func (c *Camera) Resolution() types.Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res
}

// Opened reports whether the device is currently open.
func (c *Camera) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// Opens counts successful device opens (re-opens included).
func (c *Camera) Opens() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Close releases the device. Idempotent.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	c.released = true
	return c.dev.Release()
}
