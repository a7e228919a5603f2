//go:build gst

package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/types"
)

// pullTimeout bounds one appsink pull so Grab can observe ctx.
const pullTimeout = 100 * time.Millisecond

// gstDevice captures from a V4L2 camera through GStreamer.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter(RGBA) → appsink
type gstDevice struct {
	fps float64

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	res      types.Resolution
	source   string

	seq       uint64
	bytesRead uint64
}

func newGStreamer(fps float64) (Device, error) {
	gst.Init(nil)
	return &gstDevice{fps: fps}, nil
}

func (g *gstDevice) Open(_ context.Context, index, width, height int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pipeline != nil {
		return nil
	}

	launch := buildLaunch(index, width, height, g.fps)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeDeviceOpen, "failed to create pipeline", err,
			map[string]any{"pipeline": launch})
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return errors.Wrap(errors.ErrCodeDeviceOpen, "appsink not found", err)
	}
	sink := app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return errors.WrapWithContext(errors.ErrCodeDeviceOpen, "failed to start pipeline", err,
			map[string]any{"device": fmt.Sprintf("/dev/video%d", index)})
	}

	g.pipeline = pipeline
	g.appsink = sink
	g.res = types.Resolution{Width: width, Height: height}
	g.source = fmt.Sprintf("v4l2:%d", index)

	slog.Info("device: gstreamer pipeline started", "source", g.source, "pipeline", launch)
	return nil
}

// Grab pulls the latest sample, polling in short slices until ctx is done.
func (g *gstDevice) Grab(ctx context.Context) (*types.Frame, error) {
	g.mu.Lock()
	pipeline := g.pipeline
	sink := g.appsink
	res := g.res
	source := g.source
	g.mu.Unlock()

	if sink == nil {
		return nil, errors.New(errors.ErrCodeFrameGrab, "pipeline not started")
	}

	bus := pipeline.GetPipelineBus()
	guard := newStallGuard(g.fps, atomic.LoadUint64(&g.seq) == 0, time.Now())

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sink.IsEOS() {
			return nil, errors.New(errors.ErrCodeFrameGrab, "end of stream")
		}

		sample := sink.TryPullSample(pullTimeout)
		if sample == nil {
			// v4l2src reports an unplugged or failing camera on the bus
			// without EOS.
			if err := pollBus(bus); err != nil {
				return nil, err
			}
			if err := guard.check(time.Now()); err != nil {
				return nil, err
			}
			continue
		}

		buffer := sample.GetBuffer()
		if buffer == nil {
			slog.Warn("device: failed to get buffer from sample, skipping frame")
			continue
		}

		mapInfo := buffer.Map(gst.MapRead)
		data := mapInfo.Bytes()
		if len(data) == 0 {
			buffer.Unmap()
			return nil, errors.New(errors.ErrCodeFrameGrab, "empty buffer received")
		}

		// Copy frame data (GStreamer will reuse buffer)
		frameData := make([]byte, len(data))
		copy(frameData, data)
		buffer.Unmap()

		atomic.AddUint64(&g.bytesRead, uint64(len(frameData)))
		return &types.Frame{
			Seq:       atomic.AddUint64(&g.seq, 1),
			Timestamp: time.Now(),
			Width:     res.Width,
			Height:    res.Height,
			Data:      frameData,
			Source:    source,
			TraceID:   uuid.New().String(),
		}, nil
	}
}

// pollBus drains pending bus messages and returns FRAME_GRAB on an error
// or end-of-stream message.
func pollBus(bus *gst.Bus) error {
	for {
		msg := bus.TimedPop(time.Millisecond)
		if msg == nil {
			return nil
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Debug("device: pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			return errors.WrapWithContext(errors.ErrCodeFrameGrab, "pipeline error", gerr,
				map[string]any{"debug": gerr.DebugString()})
		case gst.MessageEOS:
			return errors.New(errors.ErrCodeFrameGrab, "end of stream")
		}
	}
}

func (g *gstDevice) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pipeline == nil {
		return nil
	}
	err := g.pipeline.SetState(gst.StateNull)
	g.pipeline = nil
	g.appsink = nil
	if err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

func (g *gstDevice) Resolution() types.Resolution {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.res
}
