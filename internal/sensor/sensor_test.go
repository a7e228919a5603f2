package sensor

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/logging"
	"github.com/e7canasta/sensorview/internal/stop"
	"github.com/e7canasta/sensorview/internal/types"
)

// fakeDevice is a scriptable device.Device.
type fakeDevice struct {
	mu       sync.Mutex
	openErr  error
	grabErr  error
	opened   bool
	opens    int
	releases int
	seq      uint64
}

func (f *fakeDevice) Open(_ context.Context, _, _, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	f.opens++
	return nil
}

func (f *fakeDevice) Grab(context.Context) (*types.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grabErr != nil {
		return nil, f.grabErr
	}
	f.seq++
	return &types.Frame{Seq: f.seq, Width: 2, Height: 2, Data: make([]byte, 16)}, nil
}

func (f *fakeDevice) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = false
	f.releases++
	return nil
}

func (f *fakeDevice) Resolution() types.Resolution { return types.Resolution{Width: 2, Height: 2} }

func (f *fakeDevice) set(openErr, grabErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr, f.grabErr = openErr, grabErr
}

func newErrorLog(t *testing.T) *logging.ErrorLog {
	t.Helper()
	el, err := logging.OpenErrorLog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = el.Close() })
	return el
}

func TestScalar_CounterTracksElapsedTime(t *testing.T) {
	s := NewScalar("s", 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	var last int64
	for {
		v, err := s.Read(ctx)
		if err != nil {
			break
		}
		require.Equal(t, last+1, v, "counter increases by one per read")
		last = v
	}
	elapsed := time.Since(start)

	// Timers overshoot under load, so only the upper bound is strict.
	upper := int64(elapsed/s.Delay()) + 1
	assert.LessOrEqual(t, s.Count(), upper)
	assert.GreaterOrEqual(t, s.Count(), upper/2)
}

func TestScalar_CounterWithinOneOfElapsedOverDelay(t *testing.T) {
	s := NewScalar("coarse", 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	for {
		if _, err := s.Read(ctx); err != nil {
			break
		}
	}
	want := int64(time.Since(start) / s.Delay())

	assert.InDelta(t, want, s.Count(), 1, "counter is floor(t/d) +-1")
	assert.InDelta(t, 10, s.Count(), 1)
}

func TestScalar_InterruptedReadDoesNotIncrement(t *testing.T) {
	s := NewScalar("slow", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), s.Count())
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("retry")
	require.NoError(t, err)
	assert.Equal(t, PolicyRetry, p)

	_, err = ParseFailurePolicy("ignore")
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestCamera_OpenFailureIsFatal(t *testing.T) {
	el := newErrorLog(t)
	ctrl := stop.New(context.Background())
	dev := &fakeDevice{openErr: stderrors.New("no such device")}
	latch := logging.NewLatch("camera", el.Logger())

	cam := NewCamera(context.Background(), dev, CameraConfig{Index: 7, Width: 2, Height: 2}, ctrl, latch)

	assert.True(t, ctrl.IsFatal())
	assert.True(t, errors.HasCode(ctrl.Err(), errors.ErrCodeDeviceOpen))
	assert.False(t, cam.Opened())

	// Repeated reads neither re-open nor log again.
	for i := 0; i < 3; i++ {
		_, err := cam.Read(context.Background())
		assert.ErrorIs(t, err, ErrReleased)
	}
	require.NoError(t, cam.Close())

	n, err := logging.CountEntries(el.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCamera_GrabFailureFatal(t *testing.T) {
	ctrl := stop.New(context.Background())
	dev := &fakeDevice{}
	latch := logging.NewLatch("camera")

	cam := NewCamera(context.Background(), dev, CameraConfig{Policy: PolicyFatal}, ctrl, latch)
	require.True(t, cam.Opened())

	f, err := cam.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	assert.False(t, ctrl.IsFatal())

	dev.set(nil, stderrors.New("usb unplugged"))
	_, err = cam.Read(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFrameGrab, errors.CodeOf(err))
	assert.True(t, ctrl.IsFatal())
	assert.False(t, cam.Opened())
	assert.Equal(t, 1, dev.releases)
}

func TestCamera_RetryReopens(t *testing.T) {
	el := newErrorLog(t)
	ctrl := stop.New(context.Background())
	dev := &fakeDevice{grabErr: stderrors.New("timeout")}
	latch := logging.NewLatch("camera", el.Logger())

	cam := NewCamera(context.Background(), dev, CameraConfig{Policy: PolicyRetry}, ctrl, latch)

	_, err := cam.Read(context.Background())
	require.Error(t, err)
	_, err = cam.Read(context.Background()) // re-opens, fails again: suppressed
	require.Error(t, err)
	assert.False(t, ctrl.IsFatal(), "retry policy never escalates")
	assert.Equal(t, uint64(1), latch.Logged())

	dev.set(nil, nil)
	_, err = cam.Read(context.Background())
	require.NoError(t, err)
	assert.False(t, latch.Failing(), "success re-arms the latch")
	assert.Equal(t, uint64(3), cam.Opens())

	dev.set(nil, stderrors.New("timeout"))
	_, err = cam.Read(context.Background())
	require.Error(t, err)

	n, err := logging.CountEntries(el.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCamera_ContextCancelIsNotAFailure(t *testing.T) {
	ctrl := stop.New(context.Background())
	dev := &fakeDevice{grabErr: context.Canceled}
	latch := logging.NewLatch("camera")
	cam := NewCamera(context.Background(), dev, CameraConfig{}, ctrl, latch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cam.Read(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ctrl.IsFatal())
	assert.Equal(t, uint64(0), latch.Logged())
}
