package core

import (
	"context"
	stderrors "errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/sensorview/internal/config"
	"github.com/e7canasta/sensorview/internal/device"
	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/logging"
	"github.com/e7canasta/sensorview/internal/types"
	"github.com/e7canasta/sensorview/internal/worker"
)

// brokenDevice never opens.
type brokenDevice struct{ opens atomic.Int32 }

func (b *brokenDevice) Open(context.Context, int, int, int) error {
	b.opens.Add(1)
	return stderrors.New("no such device")
}
func (b *brokenDevice) Grab(context.Context) (*types.Frame, error) {
	return nil, stderrors.New("not open")
}
func (b *brokenDevice) Release() error               { return nil }
func (b *brokenDevice) Resolution() types.Resolution { return types.Resolution{} }

// countingDisplay counts shows and closes.
type countingDisplay struct {
	shows  atomic.Int64
	closed atomic.Bool
}

func (c *countingDisplay) Show(string, *image.RGBA) error   { c.shows.Add(1); return nil }
func (c *countingDisplay) PollKey(time.Duration) (rune, bool) { return 0, false }
func (c *countingDisplay) Close() error                       { c.closed.Store(true); return nil }

// loopback is an in-memory transport.
type loopback struct {
	mu       sync.Mutex
	handlers map[string]func([]byte)
	acks     [][]byte
}

func (l *loopback) Publish(topic string, _ byte, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(topic) > 4 && topic[len(topic)-4:] == "/ack" {
		l.acks = append(l.acks, payload)
	}
	return nil
}

func (l *loopback) Subscribe(topic string, _ byte, h func([]byte)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handlers == nil {
		l.handlers = map[string]func([]byte){}
	}
	l.handlers[topic] = h
	return nil
}

func (l *loopback) Unsubscribe(topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, topic)
	return nil
}

func (l *loopback) Connected() bool { return true }
func (l *loopback) Close()          {}

func (l *loopback) send(topic, payload string) bool {
	l.mu.Lock()
	h := l.handlers[topic]
	l.mu.Unlock()
	if h == nil {
		return false
	}
	h([]byte(payload))
	return true
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Camera.Width, cfg.Camera.Height = 64, 48
	cfg.Camera.FPS = 50
	cfg.Render.FPS = 100
	cfg.Log.Dir = t.TempDir()
	cfg.HTTP.Addr = ""
	cfg.Stats.Interval = 0
	cfg.Display.Keys = false
	return cfg
}

var fastBackoff = &worker.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond}

// runAsync runs app.Run on its own goroutine.
func runAsync(app *App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- app.Run() }()
	return done
}

func waitRun(t *testing.T, done <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(within):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestApp_CameraOpenFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	dev := &brokenDevice{}
	disp := &countingDisplay{}

	app, err := New(context.Background(), cfg, Options{Device: dev, Display: disp, Backoff: fastBackoff})
	require.NoError(t, err)
	require.True(t, app.Controller().IsFatal(), "open failure escalates before the run starts")

	err = waitRun(t, runAsync(app), 3*time.Second)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDeviceOpen))

	n, err := logging.CountEntries(app.ErrorLogPath())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one error-log entry for the failed open")

	assert.EqualValues(t, 1, dev.opens.Load(), "fatal policy never re-opens")
	assert.True(t, disp.closed.Load())
	assert.Zero(t, disp.shows.Load())
	assert.True(t, app.Controller().Stopped())
}

func TestApp_RendersAndStopsOnContext(t *testing.T) {
	cfg := testConfig(t)
	disp := &countingDisplay{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, cfg, Options{Device: device.NewSynthetic(cfg.Camera.FPS), Display: disp})
	require.NoError(t, err)
	done := runAsync(app)

	require.Eventually(t, func() bool { return disp.shows.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "healthy", app.Health().Status)

	cancel()
	// The 1s sensor is mid-read; stop interrupts it.
	require.NoError(t, waitRun(t, done, 3*time.Second))
	assert.Equal(t, "context done", app.Controller().Reason())
	assert.False(t, app.Controller().IsFatal())
	assert.Equal(t, "stopping", app.Health().Status)

	// At most the startup "frame is none" before the first frame arrived.
	n, err := logging.CountEntries(app.ErrorLogPath())
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 1)
}

func TestApp_QuitKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Display.Keys = true
	disp := &countingDisplay{}
	pr, pw := io.Pipe()
	defer pw.Close()

	app, err := New(context.Background(), cfg, Options{
		Device:  device.NewSynthetic(cfg.Camera.FPS),
		Display: disp,
		Keys:    pr,
	})
	require.NoError(t, err)
	done := runAsync(app)

	require.Eventually(t, func() bool { return disp.shows.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	_, err = io.WriteString(pw, "q\n")
	require.NoError(t, err)

	require.NoError(t, waitRun(t, done, 3*time.Second))
	assert.Equal(t, "quit key", app.Controller().Reason())
}

func TestApp_ControlPlane(t *testing.T) {
	cfg := testConfig(t)
	lb := &loopback{}

	app, err := New(context.Background(), cfg, Options{
		Device:    device.NewSynthetic(cfg.Camera.FPS),
		Transport: lb,
	})
	require.NoError(t, err)
	done := runAsync(app)

	control := cfg.MQTT.Topics.Control
	require.Eventually(t, func() bool { return lb.send(control, "set_fps 25") }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return app.Renderer().FPS() == 25 }, time.Second, 10*time.Millisecond)

	lb.send(control, "set_fps 0")
	lb.send(control, "quit")
	require.NoError(t, waitRun(t, done, 3*time.Second))
	assert.Equal(t, "control: quit", app.Controller().Reason())
	assert.Equal(t, 25.0, app.Renderer().FPS(), "invalid fps is rejected")

	lb.mu.Lock()
	defer lb.mu.Unlock()
	assert.Len(t, lb.acks, 3)
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.FPS = -1
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestApp_HealthBeforeRun(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg, Options{Device: device.NewSynthetic(0), RunID: "run-1"})
	require.NoError(t, err)
	defer func() {
		app.Controller().Stop("test done")
		_ = app.Run()
	}()

	h := app.Health()
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "run-1", h.RunID)
	require.Len(t, h.Slots, len(cfg.Sensors)+1)
	assert.Equal(t, "sensor1", h.Slots[0].Name)
	assert.Equal(t, "camera-0", h.Slots[len(h.Slots)-1].Name)
}

func TestApp_ApplyConfigChangesFPS(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg, Options{Device: device.NewSynthetic(0)})
	require.NoError(t, err)
	defer func() {
		app.Controller().Stop("test done")
		_ = app.Run()
	}()

	next := *cfg
	next.Render.FPS = 7
	app.applyConfig(&next)
	assert.Equal(t, 7.0, app.Renderer().FPS())

	next.Render.FPS = 5000
	app.applyConfig(&next)
	assert.Equal(t, 7.0, app.Renderer().FPS())
}

func TestApp_WarmupMeasuresCamera(t *testing.T) {
	cfg := testConfig(t)
	cfg.Camera.Warmup = 200 * time.Millisecond
	app, err := New(context.Background(), cfg, Options{Device: device.NewSynthetic(cfg.Camera.FPS)})
	require.NoError(t, err)
	defer func() {
		app.Controller().Stop("test done")
		_ = app.Run()
	}()

	families, err := app.Metrics().Registry.Gather()
	require.NoError(t, err)
	var fps float64
	for _, mf := range families {
		if mf.GetName() == "sensorview_camera_warmup_fps" {
			fps = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.InDelta(t, cfg.Camera.FPS, fps, cfg.Camera.FPS/2)
}
