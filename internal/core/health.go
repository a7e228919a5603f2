package core

import (
	"time"

	"github.com/e7canasta/sensorview/internal/server"
	"github.com/e7canasta/sensorview/internal/slot"
)

// Health reports the run state served on /health.
//
// Status is "unhealthy" when the fatal flag is set, "stopping" once the stop
// flag is set, "degraded" while the camera is failing or has not produced a
// frame yet, and "healthy" otherwise.
func (a *App) Health() server.Health {
	h := server.Health{
		Status:    "healthy",
		Timestamp: time.Now(),
		RunID:     a.opts.RunID,
		Uptime:    time.Since(a.started).Round(time.Second).String(),
		FPS:       a.renderer.FPS(),
		Renders:   a.renderer.Renders(),
		Skips:     a.renderer.Skips(),
	}

	for _, st := range a.slotStats() {
		h.Slots = append(h.Slots, server.SlotHealth{
			Name:      st.Name,
			Published: st.Published,
			Taken:     st.Taken,
			Dropped:   st.Dropped,
			LastAt:    st.LastPublishedAt,
			Idle:      st.IsIdle,
		})
	}

	switch {
	case a.ctrl.IsFatal():
		h.Status = "unhealthy"
		if err := a.ctrl.Err(); err != nil {
			h.Reason = err.Error()
		}
	case a.ctrl.Stopped():
		h.Status = "stopping"
		h.Reason = a.ctrl.Reason()
	case a.cameraLatch.Failing():
		h.Status = "degraded"
		h.Reason = "camera failing"
	case a.renderer.Renders() == 0:
		h.Status = "degraded"
		h.Reason = "no frame rendered yet"
	}
	return h
}

// slotStats returns the stats of every slot, scalars first.
func (a *App) slotStats() []slot.Stats {
	out := make([]slot.Stats, 0, len(a.scalarSlots)+1)
	for _, s := range a.scalarSlots {
		out = append(out, s.Stats())
	}
	return append(out, a.cameraSlot.Stats())
}
