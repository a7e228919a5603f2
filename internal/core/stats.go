package core

import (
	"context"
	"log/slog"
	"time"
)

// reportStats logs slot and render statistics every interval until ctx is
// done.
func (a *App) reportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.logStats("stats: live")
		}
	}
}

func (a *App) logFinalStats() {
	a.logStats("stats: final")
}

func (a *App) logStats(msg string) {
	uptime := time.Since(a.started).Round(time.Second)
	slog.Info(msg,
		"uptime", uptime.String(),
		"renders", a.renderer.Renders(),
		"skips", a.renderer.Skips(),
		"fps", a.renderer.FPS(),
		"camera_opens", a.camera.Opens(),
	)

	for _, st := range a.slotStats() {
		dropRate := 0.0
		if st.Published > 0 {
			dropRate = float64(st.Dropped) / float64(st.Published) * 100
		}
		attrs := []any{
			"slot", st.Name,
			"published", st.Published,
			"taken", st.Taken,
			"dropped", st.Dropped,
			"drop_rate_pct", dropRate,
		}
		if st.IsIdle {
			idle := time.Since(st.LastPublishedAt)
			if st.LastPublishedAt.IsZero() {
				idle = uptime
			}
			slog.Warn(msg+": slot idle", append(attrs, "idle", idle.Round(time.Second).String())...)
			continue
		}
		slog.Info(msg+": slot", attrs...)
	}

	if a.emitter != nil {
		slog.Info(msg+": telemetry", "published", a.emitter.Published(), "dropped", a.emitter.Dropped())
	}
}
