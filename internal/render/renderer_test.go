package render

import (
	"context"
	stderrors "errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/logging"
	"github.com/e7canasta/sensorview/internal/sensor"
	"github.com/e7canasta/sensorview/internal/slot"
	"github.com/e7canasta/sensorview/internal/stop"
	"github.com/e7canasta/sensorview/internal/types"
)

// fakeDisplay records shown images and replays scripted keys.
type fakeDisplay struct {
	mu      sync.Mutex
	shown   []*image.RGBA
	windows []string
	showErr error
	keys    []rune
}

func (f *fakeDisplay) Show(window string, img *image.RGBA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	cp := *img
	cp.Pix = append([]byte(nil), img.Pix...)
	f.shown = append(f.shown, &cp)
	f.windows = append(f.windows, window)
	return nil
}

func (f *fakeDisplay) PollKey(time.Duration) (rune, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keys) == 0 {
		return 0, false
	}
	k := f.keys[0]
	f.keys = f.keys[1:]
	return k, true
}

func (f *fakeDisplay) Close() error { return nil }

func (f *fakeDisplay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

type recorder struct{ snaps []Snapshot }

func (r *recorder) Observe(s Snapshot) { r.snaps = append(r.snaps, s) }

type fixture struct {
	scalars []*slot.Slot[int64]
	camera  *slot.Slot[*types.Frame]
	disp    *fakeDisplay
	ctrl    *stop.Controller
	latch   *logging.Latch
	r       *Renderer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		camera: slot.New[*types.Frame]("camera"),
		disp:   &fakeDisplay{},
		ctrl:   stop.New(context.Background()),
		latch:  logging.NewLatch("render"),
	}
	for i := 0; i < 3; i++ {
		f.scalars = append(f.scalars, slot.New[int64]("scalar"))
	}
	f.r = New(cfg, f.scalars, f.camera, f.disp, f.ctrl, f.latch)
	return f
}

func frame(seq uint64, w, h int) *types.Frame {
	return &types.Frame{Seq: seq, Width: w, Height: h, Data: make([]byte, 4*w*h), Timestamp: time.Now()}
}

func TestOverlayText(t *testing.T) {
	assert.Equal(t, "Sensor1: 5  Sensor2: 0  Sensor3: 12", OverlayText([]int64{5, 0, 12}))
	assert.Equal(t, "", OverlayText(nil))
}

func TestRenderer_SkipsWithoutFrame(t *testing.T) {
	f := newFixture(t, Config{})

	for i := 0; i < 3; i++ {
		_, done := f.r.Step()
		require.False(t, done)
	}

	assert.Equal(t, 0, f.disp.count())
	assert.Equal(t, uint64(3), f.r.Skips())
	assert.Equal(t, uint64(1), f.latch.Logged(), "precondition failure is logged once")
	assert.False(t, f.ctrl.IsFatal(), "no escalation inside the first-frame grace period")
}

func TestRenderer_RendersAndRearms(t *testing.T) {
	f := newFixture(t, Config{})
	obs := &recorder{}
	f.r.AddObserver(obs)

	_, _ = f.r.Step() // no frame yet
	require.True(t, f.latch.Failing())

	f.scalars[0].Publish(1)
	f.scalars[0].Publish(2)
	f.scalars[2].Publish(9)
	f.camera.Publish(frame(1, 320, 40))

	_, done := f.r.Step()
	require.False(t, done)
	require.Equal(t, 1, f.disp.count())
	assert.False(t, f.latch.Failing(), "successful render re-arms the latch")
	assert.Equal(t, "camera and data", f.disp.windows[0])

	// Stale-but-valid: empty slots keep the previous state.
	_, _ = f.r.Step()
	assert.Equal(t, 2, f.disp.count(), "held frame is shown again")

	snap := f.r.Snapshot()
	assert.Equal(t, []int64{2, 0, 9}, snap.Scalars)
	assert.True(t, snap.HasFrame)
	assert.Equal(t, uint64(1), snap.FrameSeq)
	assert.Equal(t, uint64(3), snap.Cycle)
	require.Len(t, obs.snaps, 3)
	assert.False(t, obs.snaps[0].HasFrame)
}

func TestRenderer_OverlayDrawnNearBottom(t *testing.T) {
	f := newFixture(t, Config{})
	f.camera.Publish(frame(1, 400, 60))
	_, _ = f.r.Step()
	require.Equal(t, 1, f.disp.count())

	img := f.disp.shown[0]
	minY := img.Bounds().Dy()
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			p := img.RGBAAt(x, y)
			if p.R == 255 && p.G == 255 && p.B == 0 && y < minY {
				minY = y
			}
		}
	}
	assert.GreaterOrEqual(t, minY, 60-10-13, "text sits on the baseline at height-10")
	assert.Less(t, minY, 60)
}

func TestRenderer_FirstFrameTimeoutEscalates(t *testing.T) {
	f := newFixture(t, Config{FirstFrameTimeout: 20 * time.Millisecond})

	_, done := f.r.Step()
	require.False(t, done)
	time.Sleep(30 * time.Millisecond)

	reason, done := f.r.Step()
	require.True(t, done)
	assert.Equal(t, ExitFatal, reason)
	assert.True(t, errors.HasCode(f.ctrl.Err(), errors.ErrCodeRenderPrecondition))
}

func TestRenderer_RetryPolicyNeverEscalates(t *testing.T) {
	f := newFixture(t, Config{FirstFrameTimeout: time.Millisecond, Policy: sensor.PolicyRetry})
	time.Sleep(5 * time.Millisecond)

	_, done := f.r.Step()
	assert.False(t, done)
	assert.False(t, f.ctrl.IsFatal())
}

func TestRenderer_ShowErrorLatched(t *testing.T) {
	f := newFixture(t, Config{})
	f.disp.showErr = stderrors.New("window gone")
	f.camera.Publish(frame(1, 8, 8))

	_, _ = f.r.Step()
	_, _ = f.r.Step()
	assert.Equal(t, uint64(1), f.latch.Logged())
	assert.Equal(t, uint64(0), f.r.Renders())
}

func TestRenderer_QuitKey(t *testing.T) {
	f := newFixture(t, Config{})
	f.disp.keys = []rune{'x', 'Q'}

	_, done := f.r.Step()
	assert.False(t, done)
	reason, done := f.r.Step()
	assert.True(t, done)
	assert.Equal(t, ExitQuitKey, reason)
}

func TestRenderer_RunExitsOnStop(t *testing.T) {
	f := newFixture(t, Config{FPS: 1})
	f.camera.Publish(frame(1, 8, 8))

	done := make(chan ExitReason, 1)
	go func() { done <- f.r.Run() }()

	require.Eventually(t, func() bool { return f.disp.count() >= 1 }, time.Second, 5*time.Millisecond)
	f.ctrl.Stop("test")

	select {
	case reason := <-done:
		assert.Equal(t, ExitStopped, reason)
	case <-time.After(time.Second):
		t.Fatal("Run did not observe stop during its 1s sleep")
	}
}

func TestRenderer_SetFPS(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, float64(DefaultFPS), f.r.FPS())

	require.NoError(t, f.r.SetFPS(30))
	assert.Equal(t, 30.0, f.r.FPS())

	err := f.r.SetFPS(0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
	assert.Equal(t, 30.0, f.r.FPS())
}

func TestRenderer_SkipIsSilentOnceFatal(t *testing.T) {
	f := newFixture(t, Config{})
	f.ctrl.Fatal(errors.New(errors.ErrCodeDeviceOpen, "no camera"))

	reason, done := f.r.Step()
	require.True(t, done)
	assert.Equal(t, ExitFatal, reason)
	assert.Equal(t, uint64(1), f.r.Skips())
	assert.Equal(t, uint64(0), f.latch.Logged())
}
