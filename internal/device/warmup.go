package device

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	// fpsStabilityThreshold: stable when the instantaneous-FPS stddev stays
	// under 15% of the mean.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold: stable when the mean jitter stays under 20%
	// of the expected inter-frame interval.
	jitterStabilityThreshold = 0.20
)

// WarmupStats describes the frame rate a device delivered during warm-up.
type WarmupStats struct {
	Frames     int
	Duration   time.Duration
	FPSMean    float64
	FPSStdDev  float64
	FPSMin     float64
	FPSMax     float64
	JitterMean time.Duration
	JitterMax  time.Duration
	Stable     bool
}

// Warmup grabs and discards frames from an opened device for d and measures
// the delivered rate. It must run before the acquisition worker starts
// reading the same device.
func Warmup(ctx context.Context, dev Device, d time.Duration) (WarmupStats, error) {
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	times := make([]time.Time, 0, 64)
	for wctx.Err() == nil {
		f, err := dev.Grab(wctx)
		if err != nil {
			if wctx.Err() != nil {
				break
			}
			return WarmupStats{}, fmt.Errorf("warmup: grab failed after %d frames: %w", len(times), err)
		}
		times = append(times, f.Timestamp)
	}
	if ctx.Err() != nil {
		return WarmupStats{}, ctx.Err()
	}
	if len(times) < 2 {
		return WarmupStats{}, fmt.Errorf("warmup: not enough frames received (got %d, need at least 2)", len(times))
	}

	stats := FrameRateStats(times, time.Since(start))
	slog.Info("device: warm-up complete",
		"frames", stats.Frames,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", stats.JitterMean,
		"stable", stats.Stable,
	)
	return stats, nil
}

// FrameRateStats computes rate and jitter statistics from frame timestamps.
func FrameRateStats(times []time.Time, total time.Duration) WarmupStats {
	n := len(times)
	stats := WarmupStats{Frames: n, Duration: total}
	if n == 0 || total <= 0 {
		return stats
	}
	stats.FPSMean = float64(n) / total.Seconds()

	var inst []float64
	for i := 1; i < n; i++ {
		if dt := times[i].Sub(times[i-1]).Seconds(); dt > 0 {
			inst = append(inst, 1/dt)
		}
	}
	if len(inst) == 0 {
		return stats
	}

	stats.FPSMin, stats.FPSMax = inst[0], inst[0]
	var sq float64
	for _, fps := range inst {
		stats.FPSMin = math.Min(stats.FPSMin, fps)
		stats.FPSMax = math.Max(stats.FPSMax, fps)
		sq += (fps - stats.FPSMean) * (fps - stats.FPSMean)
	}
	stats.FPSStdDev = math.Sqrt(sq / float64(len(inst)))

	expected := 1 / stats.FPSMean
	var sum float64
	for i := 1; i < n; i++ {
		j := math.Abs(times[i].Sub(times[i-1]).Seconds() - expected)
		sum += j
		if d := time.Duration(j * float64(time.Second)); d > stats.JitterMax {
			stats.JitterMax = d
		}
	}
	jitterMean := sum / float64(n-1)
	stats.JitterMean = time.Duration(jitterMean * float64(time.Second))

	stats.Stable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		jitterMean < expected*jitterStabilityThreshold
	return stats
}

// SuggestRate caps want at 90% of the measured device rate when the device
// is slower than want.
func SuggestRate(stats WarmupStats, want float64) float64 {
	if stats.FPSMean > 0 && stats.FPSMean < want {
		return stats.FPSMean * 0.9
	}
	return want
}
