//go:build gocv

package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/types"
)

// gocvDevice captures through OpenCV VideoCapture.
type gocvDevice struct {
	fps float64

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	bgr    gocv.Mat
	res    types.Resolution
	source string
	seq    uint64
}

func newGoCV(fps float64) (Device, error) {
	return &gocvDevice{fps: fps}, nil
}

func (d *gocvDevice) Open(_ context.Context, index, width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeDeviceOpen, "failed to open video capture", err,
			map[string]any{"index": index})
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return errors.NewWithContext(errors.ErrCodeDeviceOpen, "video capture not opened",
			map[string]any{"index": index})
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	if d.fps > 0 {
		vc.Set(gocv.VideoCaptureFPS, d.fps)
	}

	// The driver may pick a different mode; report what it actually uses.
	d.res = types.Resolution{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	d.cap = vc
	d.bgr = gocv.NewMat()
	d.source = fmt.Sprintf("opencv:%d", index)

	slog.Debug("device: opencv capture opened", "source", d.source, "resolution", d.res.String())
	return nil
}

// Grab reads one frame. VideoCapture.Read blocks in C and cannot observe
// ctx; the worst case is one frame interval.
func (d *gocvDevice) Grab(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap == nil {
		return nil, errors.New(errors.ErrCodeFrameGrab, "video capture not opened")
	}
	if ok := d.cap.Read(&d.bgr); !ok || d.bgr.Empty() {
		return nil, errors.New(errors.ErrCodeFrameGrab, "failed to read frame")
	}

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(d.bgr, &rgba, gocv.ColorBGRToRGBA)

	d.seq++
	return &types.Frame{
		Seq:       d.seq,
		Timestamp: time.Now(),
		Width:     rgba.Cols(),
		Height:    rgba.Rows(),
		Data:      rgba.ToBytes(),
		Source:    d.source,
		TraceID:   uuid.New().String(),
	}, nil
}

func (d *gocvDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap == nil {
		return nil
	}
	err := d.cap.Close()
	_ = d.bgr.Close()
	d.cap = nil
	return err
}

func (d *gocvDevice) Resolution() types.Resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.res
}
