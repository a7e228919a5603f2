package config

import (
	"fmt"
	"time"

	"github.com/e7canasta/sensorview/internal/errors"
)

var (
	validDevices  = map[string]bool{"synthetic": true, "gst": true, "gocv": true}
	validSinks    = map[string]bool{"mjpeg": true, "shm": true, "window": true}
	validPolicies = map[string]bool{"fatal": true, "retry": true}
	validFormats  = map[string]bool{"text": true, "json": true}
)

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Camera
	if cfg.Camera.Index < 0 {
		return invalid("camera.index must be >= 0")
	}
	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return invalid("camera resolution must be positive, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "synthetic"
	}
	if !validDevices[cfg.Camera.Device] {
		return invalid("camera.device must be one of synthetic, gst, gocv, got %q", cfg.Camera.Device)
	}
	if cfg.Camera.OnFailure == "" {
		cfg.Camera.OnFailure = "fatal"
	}
	if !validPolicies[cfg.Camera.OnFailure] {
		return invalid("camera.on_failure must be fatal or retry, got %q", cfg.Camera.OnFailure)
	}
	if cfg.Camera.FPS < 0 {
		return invalid("camera.fps must be >= 0")
	}
	if cfg.Camera.Warmup < 0 {
		return invalid("camera.warmup must be >= 0")
	}

	// Render
	if err := ValidateFPS(cfg.Render.FPS); err != nil {
		return err
	}
	if cfg.Render.FirstFrameTimeout <= 0 {
		cfg.Render.FirstFrameTimeout = 5 * time.Second
	}

	// Sensors
	if len(cfg.Sensors) == 0 {
		return invalid("at least one scalar sensor is required")
	}
	seen := make(map[string]bool, len(cfg.Sensors))
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("sensor%d", i+1)
		}
		if seen[s.Name] {
			return invalid("sensor name %q is used twice", s.Name)
		}
		seen[s.Name] = true
		if s.Delay <= 0 {
			return invalid("sensor %q: delay must be positive, got %s", s.Name, s.Delay)
		}
	}

	// Display
	if len(cfg.Display.Sinks) == 0 {
		return invalid("display.sinks must name at least one sink")
	}
	for _, s := range cfg.Display.Sinks {
		if !validSinks[s] {
			return invalid("display sink must be one of mjpeg, shm, window, got %q", s)
		}
		if s == "shm" && cfg.Display.ShmPath == "" {
			return invalid("display.shm_path is required for the shm sink")
		}
	}
	if cfg.Display.JPEGQuality <= 0 || cfg.Display.JPEGQuality > 100 {
		cfg.Display.JPEGQuality = 80
	}

	// Log
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "log"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if !validFormats[cfg.Log.Format] {
		return invalid("log.format must be text or json, got %q", cfg.Log.Format)
	}

	// HTTP
	if cfg.HTTP.RateLimit <= 0 {
		cfg.HTTP.RateLimit = 20
	}
	if cfg.HTTP.Burst <= 0 {
		cfg.HTTP.Burst = 2 * int(cfg.HTTP.RateLimit)
	}

	// MQTT: set default topics if not provided
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "sensorview"
	}
	if cfg.MQTT.Topics.Telemetry == "" {
		cfg.MQTT.Topics.Telemetry = fmt.Sprintf("sensorview/%s/telemetry", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("sensorview/%s/control", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.QoS > 2 {
		return invalid("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.MQTT.MaxRateHz <= 0 {
		cfg.MQTT.MaxRateHz = 5
	}

	if cfg.Stats.Interval < 0 {
		return invalid("stats.interval must be >= 0")
	}

	return nil
}

// ValidateFPS checks a render rate (also used by hot reload and control).
func ValidateFPS(fps float64) error {
	if fps <= 0 || fps > 1000 {
		return invalid("render.fps must be in (0, 1000], got %v", fps)
	}
	return nil
}
