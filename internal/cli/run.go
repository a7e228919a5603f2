package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/e7canasta/sensorview/internal/config"
	"github.com/e7canasta/sensorview/internal/core"
	"github.com/e7canasta/sensorview/internal/logging"
)

const envPrefix = "SENSORVIEW_"

func env(key string) cli.ValueSourceChain {
	return cli.EnvVars(envPrefix + key)
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file (watched for render.fps changes)",
			Sources: env("CONFIG"),
		},
		&cli.IntFlag{
			Name:    "camIndex",
			Usage:   "camera device index",
			Value:   0,
			Sources: env("CAM_INDEX"),
		},
		&cli.IntFlag{
			Name:    "width",
			Usage:   "requested camera width",
			Value:   720,
			Sources: env("WIDTH"),
		},
		&cli.IntFlag{
			Name:    "height",
			Usage:   "requested camera height",
			Value:   480,
			Sources: env("HEIGHT"),
		},
		&cli.FloatFlag{
			Name:    "fps",
			Usage:   "render rate in frames per second",
			Value:   15,
			Sources: env("FPS"),
		},
		&cli.StringFlag{
			Name:    "device",
			Usage:   "camera backend: synthetic, gst, gocv",
			Value:   "synthetic",
			Sources: env("DEVICE"),
		},
		&cli.StringFlag{
			Name:    "on-camera-failure",
			Usage:   "camera failure policy: fatal, retry",
			Value:   "fatal",
			Sources: env("ON_CAMERA_FAILURE"),
		},
		&cli.StringFlag{
			Name:    "display",
			Usage:   "comma-separated display sinks: mjpeg, shm, window",
			Value:   "mjpeg",
			Sources: env("DISPLAY_SINKS"),
		},
		&cli.StringFlag{
			Name:    "http-addr",
			Usage:   "metrics, health and MJPEG listen address (empty disables)",
			Value:   ":8080",
			Sources: env("HTTP_ADDR"),
		},
		&cli.StringFlag{
			Name:    "mqtt-broker",
			Usage:   "MQTT broker URL for telemetry and control (empty disables)",
			Sources: env("MQTT_BROKER"),
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Usage:   "directory holding error.log",
			Value:   "log",
			Sources: env("LOG_DIR"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level (debug, info, warn, error)",
			Value:   "info",
			Sources: env("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "console log format: text, json",
			Value:   "text",
			Sources: env("LOG_FORMAT"),
		},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll the sensors and render the overlay until quit",
		Description: `Starts one acquisition goroutine per sensor and renders the latest
readings over the camera frame at --fps.

Quit with "q" on stdin, SIGINT/SIGTERM, or the "quit" control command.
The process exits non-zero when the camera fails under the fatal policy.

# Examples

Synthetic camera, MJPEG on :8080:
  sensorview run

Real camera through GStreamer (built with -tags gst), retry on failure:
  sensorview run --device gst --camIndex 1 --on-camera-failure retry`,
		Flags: runFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			slog.SetDefault(logging.NewStructuredLogger(logging.Options{
				Module:  name,
				Version: version,
				RunID:   runID,
				Level:   cfg.Log.Level,
				Format:  cfg.Log.Format,
			}))
			slog.Info("starting",
				"name", name,
				"version", version,
				"commit", commit,
				"date", date,
				"config", cmd.String("config"))

			app, err := core.New(ctx, cfg, core.Options{
				Version:    version,
				RunID:      runID,
				ConfigPath: cmd.String("config"),
				Keys:       os.Stdin,
			})
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			return app.Run()
		},
	}
}

// buildConfig layers the config file and explicitly set flags over the
// defaults, then validates the result.
func buildConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.IsSet("camIndex") {
		cfg.Camera.Index = int(cmd.Int("camIndex"))
	}
	if cmd.IsSet("width") {
		cfg.Camera.Width = int(cmd.Int("width"))
	}
	if cmd.IsSet("height") {
		cfg.Camera.Height = int(cmd.Int("height"))
	}
	if cmd.IsSet("fps") {
		cfg.Render.FPS = cmd.Float("fps")
	}
	if cmd.IsSet("device") {
		cfg.Camera.Device = cmd.String("device")
	}
	if cmd.IsSet("on-camera-failure") {
		cfg.Camera.OnFailure = cmd.String("on-camera-failure")
	}
	if cmd.IsSet("display") {
		cfg.Display.Sinks = splitList(cmd.String("display"))
	}
	if cmd.IsSet("http-addr") {
		cfg.HTTP.Addr = cmd.String("http-addr")
	}
	if cmd.IsSet("mqtt-broker") {
		cfg.MQTT.Broker = cmd.String("mqtt-broker")
	}
	if cmd.IsSet("log-dir") {
		cfg.Log.Dir = cmd.String("log-dir")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
