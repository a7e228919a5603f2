// Package device provides the imaging collaborators the camera sensor reads
// from.
//
// Backends:
//   - synthetic: pure-Go moving test pattern (always available)
//   - gst:       GStreamer v4l2src → appsink (build tag "gst")
//   - gocv:      OpenCV VideoCapture (build tag "gocv")
//
// A backend that was not compiled in returns an UNAVAILABLE error from New.
package device

import (
	"context"
	"fmt"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/types"
)

// Backend names accepted by New.
const (
	KindSynthetic = "synthetic"
	KindGStreamer = "gst"
	KindGoCV      = "gocv"
)

// Device is an imaging device producing RGBA frames.
//
// Open may be called again after Release (retry policy).
// Grab blocks until a frame is available or ctx is done.
type Device interface {
	Open(ctx context.Context, index, width, height int) error
	Grab(ctx context.Context) (*types.Frame, error)
	Release() error

	// Resolution reports the actual resolution negotiated by Open.
	Resolution() types.Resolution
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind string

	// FPS is the capture rate requested from the device (synthetic pacing,
	// gst videorate, gocv CAP_PROP_FPS). Zero means backend default.
	FPS float64

	// LockDir enables the per-index advisory lock when non-empty.
	LockDir string
}

// New builds the backend named by cfg.Kind, wrapped with a device lock when
// cfg.LockDir is set.
func New(cfg Config) (Device, error) {
	var (
		dev Device
		err error
	)

	switch cfg.Kind {
	case KindSynthetic, "":
		dev = NewSynthetic(cfg.FPS)
	case KindGStreamer:
		dev, err = newGStreamer(cfg.FPS)
	case KindGoCV:
		dev, err = newGoCV(cfg.FPS)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, fmt.Sprintf("unknown device backend %q", cfg.Kind))
	}
	if err != nil {
		return nil, err
	}

	if cfg.LockDir != "" {
		dev = WithLock(dev, cfg.LockDir)
	}
	return dev, nil
}

func unavailable(kind, tag string) error {
	return errors.NewWithContext(errors.ErrCodeUnavailable,
		fmt.Sprintf("device backend %q not compiled in (build with -tags %s)", kind, tag),
		map[string]any{"backend": kind})
}
