package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sensorview configuration
type Config struct {
	Camera  CameraConfig   `yaml:"camera"`
	Render  RenderConfig   `yaml:"render"`
	Sensors []ScalarConfig `yaml:"sensors"`
	Display DisplayConfig  `yaml:"display"`
	Log     LogConfig      `yaml:"log"`
	HTTP    HTTPConfig     `yaml:"http"`
	MQTT    MQTTConfig     `yaml:"mqtt"`
	Stats   StatsConfig    `yaml:"stats"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Index     int     `yaml:"index"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Device    string  `yaml:"device"`     // synthetic, gst, gocv
	FPS       float64 `yaml:"fps"`        // capture rate requested from the device (0 = backend default)
	OnFailure string  `yaml:"on_failure"` // fatal, retry
	LockDir   string  `yaml:"lock_dir"`   // per-index device lock ("" disables)

	// Warmup measures the device frame rate before the run (0 disables).
	Warmup time.Duration `yaml:"warmup"`
}

// RenderConfig contains render loop settings
type RenderConfig struct {
	FPS               float64       `yaml:"fps"`                 // hot-reloadable
	FirstFrameTimeout time.Duration `yaml:"first_frame_timeout"` // fatal policy only
}

// ScalarConfig defines one simulated scalar sensor
type ScalarConfig struct {
	Name  string        `yaml:"name"`
	Delay time.Duration `yaml:"delay"`
}

// DisplayConfig contains display sink settings
type DisplayConfig struct {
	Sinks       []string `yaml:"sinks"` // mjpeg, shm, window
	JPEGQuality int      `yaml:"jpeg_quality"`
	ShmPath     string   `yaml:"shm_path"`
	Keys        bool     `yaml:"keys"` // read quit keys from stdin
}

// LogConfig contains logging settings
type LogConfig struct {
	Dir    string `yaml:"dir"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// HTTPConfig contains the metrics/stream server settings
type HTTPConfig struct {
	Addr      string  `yaml:"addr"` // "" disables the server
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker    string     `yaml:"broker"` // "" disables telemetry and control
	ClientID  string     `yaml:"client_id"`
	Topics    MQTTTopics `yaml:"topics"`
	QoS       byte       `yaml:"qos"`
	MaxRateHz float64    `yaml:"max_rate_hz"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Telemetry string `yaml:"telemetry"`
	Control   string `yaml:"control"`
}

// StatsConfig contains the periodic stats reporter settings
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables
}

// Default returns the reference configuration: three scalar sensors with
// delays 10ms, 100ms and 1s, camera 0 at 720x480, render at 15 fps.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Index:     0,
			Width:     720,
			Height:    480,
			Device:    "synthetic",
			OnFailure: "fatal",
		},
		Render: RenderConfig{
			FPS:               15,
			FirstFrameTimeout: 5 * time.Second,
		},
		Sensors: []ScalarConfig{
			{Name: "sensor1", Delay: 10 * time.Millisecond},
			{Name: "sensor2", Delay: 100 * time.Millisecond},
			{Name: "sensor3", Delay: time.Second},
		},
		Display: DisplayConfig{
			Sinks:       []string{"mjpeg"},
			JPEGQuality: 80,
			ShmPath:     "/dev/shm/sensorview.frame",
			Keys:        true,
		},
		Log: LogConfig{
			Dir:    "log",
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			RateLimit: 20,
			Burst:     40,
		},
		MQTT: MQTTConfig{
			ClientID:  "sensorview",
			QoS:       0,
			MaxRateHz: 5,
		},
		Stats: StatsConfig{
			Interval: 10 * time.Second,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
