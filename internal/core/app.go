// Package core wires sensors, slots, workers, the renderer and the auxiliary
// services into one run, and owns the shutdown sequence.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/e7canasta/sensorview/internal/config"
	"github.com/e7canasta/sensorview/internal/device"
	"github.com/e7canasta/sensorview/internal/display"
	"github.com/e7canasta/sensorview/internal/emitter"
	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/logging"
	"github.com/e7canasta/sensorview/internal/metrics"
	"github.com/e7canasta/sensorview/internal/render"
	"github.com/e7canasta/sensorview/internal/sensor"
	"github.com/e7canasta/sensorview/internal/server"
	"github.com/e7canasta/sensorview/internal/slot"
	"github.com/e7canasta/sensorview/internal/stop"
	"github.com/e7canasta/sensorview/internal/types"
	"github.com/e7canasta/sensorview/internal/worker"
)

// Options carries what a run needs besides the configuration.
type Options struct {
	Version string
	RunID   string

	// ConfigPath is watched for render.fps changes when set.
	ConfigPath string

	// Keys feeds quit keys to the display. Nil disables key input.
	Keys io.Reader

	// Device replaces the configured camera backend.
	Device device.Device

	// Display is added to the configured sinks.
	Display display.Display

	// Transport replaces the MQTT connection to cfg.MQTT.Broker.
	Transport emitter.Transport

	// Backoff overrides the worker error backoff.
	Backoff *worker.BackoffConfig
}

// App is one sensorview run.
type App struct {
	cfg     *config.Config
	opts    Options
	ctrl    *stop.Controller
	metrics *metrics.Metrics
	errLog  *logging.ErrorLog
	started time.Time

	scalars       []*sensor.Scalar
	scalarSlots   []*slot.Slot[int64]
	scalarWorkers []*worker.Worker[int64]

	camera       *sensor.Camera
	cameraSlot   *slot.Slot[*types.Frame]
	cameraWorker *worker.Worker[*types.Frame]
	cameraLatch  *logging.Latch

	display  *display.Multi
	mjpeg    *display.MJPEG
	keys     *display.KeyReader
	renderer *render.Renderer

	server    *server.Server
	transport emitter.Transport
	emitter   *emitter.Emitter
	control   *emitter.Handler
}

// New builds every component of a run. Nothing is started: workers, the
// renderer and the auxiliary services start in Run.
//
// ctx bounds the run; cancelling it (e.g. on SIGINT) requests a stop.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	policy, err := sensor.ParseFailurePolicy(cfg.Camera.OnFailure)
	if err != nil {
		return nil, err
	}

	errLog, err := logging.OpenErrorLog(cfg.Log.Dir)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		opts:    opts,
		ctrl:    stop.New(ctx),
		metrics: metrics.New(),
		errLog:  errLog,
		started: time.Now(),
	}

	if err := a.buildDisplay(); err != nil {
		_ = errLog.Close()
		return nil, err
	}

	dev := opts.Device
	if dev == nil {
		dev, err = device.New(device.Config{
			Kind:    cfg.Camera.Device,
			FPS:     cfg.Camera.FPS,
			LockDir: cfg.Camera.LockDir,
		})
		if err != nil {
			_ = a.display.Close()
			_ = errLog.Close()
			return nil, err
		}
	}

	a.buildScalars()

	// The camera opens its device here, on the constructing goroutine.
	a.cameraLatch = a.newLatch("camera")
	a.camera = sensor.NewCamera(a.ctrl.Context(), dev, sensor.CameraConfig{
		Index:  cfg.Camera.Index,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		Policy: policy,
	}, a.ctrl, a.cameraLatch)
	if cfg.Camera.Warmup > 0 && a.camera.Opened() {
		a.warmup(ctx, dev, cfg.Camera.Warmup)
	}
	a.cameraSlot = slot.New[*types.Frame](a.camera.Name())
	a.cameraWorker = worker.New[*types.Frame](a.camera, a.cameraSlot, a.ctrl, a.workerOptions()...)
	a.metrics.RegisterSlotPending(a.cameraSlot.Name(), a.cameraSlot.Stats)

	a.renderer = render.New(render.Config{
		Window:            display.WindowName,
		FPS:               cfg.Render.FPS,
		Policy:            policy,
		FirstFrameTimeout: cfg.Render.FirstFrameTimeout,
	}, a.scalarSlots, a.cameraSlot, a.display, a.ctrl, a.newLatch("render"))
	a.renderer.SetHooks(render.Hooks{
		OnRender: func(d time.Duration) {
			a.metrics.RenderFrames.Inc()
			a.metrics.RenderDuration.Observe(d.Seconds())
		},
		OnSkip: a.metrics.RenderSkips.Inc,
	})
	a.metrics.RenderFPS.Set(a.renderer.FPS())

	if cfg.HTTP.Addr != "" {
		a.buildServer()
	}

	if err := a.buildTelemetry(); err != nil {
		a.ctrl.Stop("startup failed")
		_ = a.camera.Close()
		_ = a.display.Close()
		_ = errLog.Close()
		return nil, err
	}

	return a, nil
}

// warmup measures the camera rate before the worker starts reading and warns
// when the render rate is above it. Failures here are not escalated; the
// camera sensor reports real failures once the run starts.
func (a *App) warmup(ctx context.Context, dev device.Device, d time.Duration) {
	stats, err := device.Warmup(ctx, dev, d)
	if err != nil {
		slog.Warn("camera: warm-up failed", "error", err)
		return
	}
	a.metrics.RegisterGauge("camera_warmup_fps", "Camera frame rate measured during warm-up",
		func() float64 { return stats.FPSMean })

	if !stats.Stable {
		slog.Warn("camera: frame rate unstable during warm-up",
			"fps_mean", stats.FPSMean, "fps_stddev", stats.FPSStdDev, "jitter_mean", stats.JitterMean)
	}
	if want := a.cfg.Render.FPS; device.SuggestRate(stats, want) < want {
		slog.Warn("render: fps above camera rate, frames will repeat",
			"render_fps", want,
			"camera_fps", fmt.Sprintf("%.2f", stats.FPSMean),
			"suggested_fps", fmt.Sprintf("%.2f", device.SuggestRate(stats, want)))
	}
}

// newLatch returns an edge-triggered latch logging to the error log and the
// console, counting every logged failure.
func (a *App) newLatch(name string) *logging.Latch {
	l := logging.NewLatch(name, a.errLog.Logger(), slog.Default())
	l.OnLog = a.metrics.ObserveError
	return l
}

func (a *App) workerOptions() []worker.Option {
	opts := []worker.Option{worker.WithHooks(worker.Hooks{
		OnRead:    a.metrics.ObserveRead,
		OnPublish: a.metrics.ObservePublish,
	})}
	if a.opts.Backoff != nil {
		opts = append(opts, worker.WithBackoff(*a.opts.Backoff))
	}
	return opts
}

func (a *App) buildScalars() {
	for _, sc := range a.cfg.Sensors {
		s := sensor.NewScalar(sc.Name, sc.Delay)
		sl := slot.New[int64](sc.Name)
		a.scalars = append(a.scalars, s)
		a.scalarSlots = append(a.scalarSlots, sl)
		a.scalarWorkers = append(a.scalarWorkers, worker.New[int64](s, sl, a.ctrl, a.workerOptions()...))
		a.metrics.RegisterSlotPending(sl.Name(), sl.Stats)
	}
}

func (a *App) buildDisplay() error {
	var sinks []display.Display
	for _, name := range a.cfg.Display.Sinks {
		switch name {
		case "mjpeg":
			a.mjpeg = display.NewMJPEG(a.cfg.Display.JPEGQuality)
			sinks = append(sinks, a.mjpeg)
		case "shm":
			sinks = append(sinks, display.NewSHM(a.cfg.Display.ShmPath))
		case "window":
			w, err := display.NewWindow()
			if err != nil {
				for _, s := range sinks {
					_ = s.Close()
				}
				return err
			}
			sinks = append(sinks, w)
		}
	}
	if a.opts.Display != nil {
		sinks = append(sinks, a.opts.Display)
	}

	a.display = display.NewMulti(sinks...)
	if a.cfg.Display.Keys && a.opts.Keys != nil {
		a.keys = display.NewKeyReader(a.opts.Keys)
		a.display.AddKeySource(a.keys)
	}

	if a.mjpeg != nil {
		a.metrics.RegisterGauge("mjpeg_viewers", "Number of connected MJPEG stream viewers",
			func() float64 { return float64(a.mjpeg.Viewers()) })
	}
	slog.Info("display: sinks configured", "sinks", a.cfg.Display.Sinks, "count", a.display.Len(),
		"keys", a.keys != nil)
	return nil
}

func (a *App) buildServer() {
	scfg := server.DefaultConfig()
	scfg.Addr = a.cfg.HTTP.Addr
	scfg.RateLimit = rate.Limit(a.cfg.HTTP.RateLimit)
	scfg.RateLimitBurst = a.cfg.HTTP.Burst

	var stream server.Stream
	if a.mjpeg != nil {
		stream = a.mjpeg
	}
	a.server = server.New(scfg, a.metrics, a.Health, stream)
}

func (a *App) buildTelemetry() error {
	t := a.opts.Transport
	if t == nil {
		if a.cfg.MQTT.Broker == "" {
			return nil
		}
		mt, err := emitter.Dial(a.cfg.MQTT.Broker, a.cfg.MQTT.ClientID)
		if err != nil {
			return errors.Wrap(errors.ErrCodeUnavailable, "mqtt broker unreachable", err)
		}
		t = mt
	}
	a.transport = t

	a.emitter = emitter.New(t, a.cfg.MQTT.Topics.Telemetry, a.cfg.MQTT.QoS, a.cfg.MQTT.MaxRateHz, emitter.Hooks{
		OnPublish: a.metrics.TelemetryPublished.Inc,
		OnDrop: func(reason string) {
			a.metrics.TelemetryDropped.WithLabelValues(reason).Inc()
		},
	})
	a.renderer.AddObserver(a.emitter)

	a.control = emitter.NewHandler(t, a.cfg.MQTT.Topics.Control, a.cfg.MQTT.QoS, a.commandCallbacks())
	a.control.OnCommand = func(command, status string) {
		a.metrics.ControlCommands.WithLabelValues(command, status).Inc()
	}
	return nil
}

// Controller exposes the run's stop controller.
func (a *App) Controller() *stop.Controller { return a.ctrl }

// Metrics exposes the run's instruments.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Renderer exposes the render loop.
func (a *App) Renderer() *render.Renderer { return a.renderer }

// ErrorLogPath returns the path of the error log.
func (a *App) ErrorLogPath() string { return a.errLog.Path() }

// Run starts the workers and auxiliary services, runs the render loop on the
// calling goroutine and performs the shutdown sequence once it exits. It must
// be called from the goroutine that owns the display.
//
// Run returns the first fatal error, or nil after a quit key or stop request.
func (a *App) Run() error {
	slog.Info("sensorview: run starting",
		"sensors", len(a.scalars),
		"camera", a.camera.Name(),
		"resolution", a.camera.Resolution().String(),
		"policy", a.cfg.Camera.OnFailure,
	)

	for _, w := range a.scalarWorkers {
		w.Start()
	}
	a.cameraWorker.Start()

	g, gctx := errgroup.WithContext(a.ctrl.Context())
	a.startAux(g, gctx)

	reason := a.renderer.Run()
	a.shutdown(string(reason))

	if err := g.Wait(); err != nil {
		slog.Warn("sensorview: auxiliary service failed", "error", err)
	}
	a.logFinalStats()

	if a.transport != nil {
		a.transport.Close()
	}
	if err := a.errLog.Close(); err != nil {
		slog.Warn("sensorview: error log close failed", "error", err)
	}

	if a.ctrl.IsFatal() {
		return fmt.Errorf("sensorview: %w", a.ctrl.Err())
	}
	slog.Info("sensorview: run finished", "reason", a.ctrl.Reason())
	return nil
}

// startAux launches the auxiliary services. Each stops when gctx is done,
// which happens at the latest when the stop flag is set.
func (a *App) startAux(g *errgroup.Group, gctx context.Context) {
	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Start(gctx); err != nil {
				a.ctrl.Fatal(errors.Wrap(errors.ErrCodeUnavailable, "http server failed", err))
				return err
			}
			return nil
		})
	}
	if a.keys != nil {
		g.Go(func() error {
			if err := a.keys.Run(gctx); err != nil {
				slog.Warn("display: key input ended", "error", err)
			}
			return nil
		})
	}
	if a.emitter != nil {
		g.Go(func() error { return a.emitter.Run(gctx) })
	}
	if a.control != nil {
		g.Go(func() error {
			if err := a.control.Run(gctx); err != nil {
				slog.Warn("control plane unavailable", "error", err)
			}
			return nil
		})
	}
	if a.opts.ConfigPath != "" {
		g.Go(func() error {
			if err := config.Watch(gctx, a.opts.ConfigPath, a.applyConfig); err != nil {
				slog.Warn("config: hot reload disabled", "error", err)
			}
			return nil
		})
	}
	if a.cfg.Stats.Interval > 0 {
		g.Go(func() error {
			a.reportStats(gctx, a.cfg.Stats.Interval)
			return nil
		})
	}
}

// shutdown closes the display, sets the stop flag, then joins the camera
// worker and the scalar workers in creation order. Worst-case latency is one
// read cycle of the slowest sensor.
func (a *App) shutdown(reason string) {
	start := time.Now()
	slog.Info("sensorview: shutting down", "reason", reason)

	if err := a.display.Close(); err != nil {
		slog.Warn("display: close failed", "error", err)
	}
	a.ctrl.Stop(reason)

	a.cameraWorker.Wait()
	for _, w := range a.scalarWorkers {
		w.Wait()
	}

	slog.Info("sensorview: workers joined", "elapsed", time.Since(start).Round(time.Millisecond))
}
