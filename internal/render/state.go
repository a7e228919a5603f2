package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/e7canasta/sensorview/internal/types"
)

// DisplayState is what the renderer last saw from every slot. Fields persist
// across cycles: an empty slot leaves the previous value in place.
type DisplayState struct {
	Scalars []int64
	Frame   *types.Frame
}

// Snapshot is an immutable copy of the display state handed to observers.
type Snapshot struct {
	Cycle        uint64    `msgpack:"cycle" json:"cycle"`
	Timestamp    time.Time `msgpack:"ts" json:"ts"`
	Scalars      []int64   `msgpack:"scalars" json:"scalars"`
	HasFrame     bool      `msgpack:"has_frame" json:"has_frame"`
	FrameSeq     uint64    `msgpack:"frame_seq" json:"frame_seq"`
	FrameTraceID string    `msgpack:"frame_trace_id" json:"frame_trace_id"`
	FrameAge     float64   `msgpack:"frame_age_ms" json:"frame_age_ms"`
}

func (s DisplayState) snapshot(cycle uint64, now time.Time) Snapshot {
	snap := Snapshot{
		Cycle:     cycle,
		Timestamp: now,
		Scalars:   append([]int64(nil), s.Scalars...),
	}
	if s.Frame != nil {
		snap.HasFrame = true
		snap.FrameSeq = s.Frame.Seq
		snap.FrameTraceID = s.Frame.TraceID
		snap.FrameAge = float64(now.Sub(s.Frame.Timestamp).Microseconds()) / 1000
	}
	return snap
}

// OverlayText formats scalar readings as "Sensor1: a  Sensor2: b  ...".
func OverlayText(values []int64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("Sensor%d: %d", i+1, v)
	}
	return strings.Join(parts, "  ")
}
