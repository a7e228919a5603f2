package metrics

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/sensorview/internal/errors"
	"github.com/e7canasta/sensorview/internal/slot"
)

// value gathers reg and returns the counter or gauge value of the series
// name with the given labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("series %s%v not found", name, labels)
	return 0
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two runs in one process must not collide.
	a, b := New(), New()
	a.RenderFrames.Inc()
	b.RenderSkips.Inc()

	assert.Equal(t, 1.0, value(t, a.Registry, "sensorview_render_frames_total", nil))
	assert.Equal(t, 0.0, value(t, b.Registry, "sensorview_render_frames_total", nil))
}

func TestMetrics_Observers(t *testing.T) {
	m := New()

	m.ObserveRead("sensor1", time.Millisecond, nil)
	m.ObserveRead("sensor1", time.Millisecond, stderrors.New("x"))
	m.ObservePublish("sensor1", false)
	m.ObservePublish("sensor1", true)
	m.ObserveError(errors.ErrCodeDeviceOpen)

	reg := m.Registry
	assert.Equal(t, 1.0, value(t, reg, "sensorview_sensor_reads_total", map[string]string{"sensor": "sensor1", "result": "ok"}))
	assert.Equal(t, 1.0, value(t, reg, "sensorview_sensor_reads_total", map[string]string{"sensor": "sensor1", "result": "error"}))
	assert.Equal(t, 2.0, value(t, reg, "sensorview_slot_publishes_total", map[string]string{"slot": "sensor1"}))
	assert.Equal(t, 1.0, value(t, reg, "sensorview_slot_drops_total", map[string]string{"slot": "sensor1"}))
	assert.Equal(t, 1.0, value(t, reg, "sensorview_errors_logged_total", map[string]string{"code": "DEVICE_OPEN"}))
}

func TestMetrics_GaugeFuncs(t *testing.T) {
	m := New()
	s := slot.New[int]("camera")
	m.RegisterSlotPending("camera", s.Stats)
	m.RegisterGauge("mjpeg_viewers", "viewers", func() float64 { return 3 })

	assert.Equal(t, 0.0, value(t, m.Registry, "sensorview_slot_pending", map[string]string{"slot": "camera"}))
	s.Publish(1)
	assert.Equal(t, 1.0, value(t, m.Registry, "sensorview_slot_pending", map[string]string{"slot": "camera"}))
	assert.Equal(t, 3.0, value(t, m.Registry, "sensorview_mjpeg_viewers", nil))
}
