package core

import (
	"log/slog"

	"github.com/e7canasta/sensorview/internal/config"
	"github.com/e7canasta/sensorview/internal/emitter"
)

// commandCallbacks binds control-plane commands to the run.
func (a *App) commandCallbacks() emitter.CommandCallbacks {
	return emitter.CommandCallbacks{
		OnQuit: func() {
			slog.Info("control: quit requested")
			a.ctrl.Stop("control: quit")
		},
		OnSetFPS: a.setFPS,
		OnGetStatus: func() map[string]any {
			h := a.Health()
			return map[string]any{
				"status":  h.Status,
				"uptime":  h.Uptime,
				"fps":     h.FPS,
				"renders": h.Renders,
				"skips":   h.Skips,
				"slots":   h.Slots,
			}
		},
	}
}

// setFPS changes the render rate (control plane and hot reload).
func (a *App) setFPS(fps float64) error {
	if err := config.ValidateFPS(fps); err != nil {
		return err
	}
	if err := a.renderer.SetFPS(fps); err != nil {
		return err
	}
	a.metrics.RenderFPS.Set(fps)
	return nil
}

// applyConfig applies a reloaded configuration. Only render.fps is applied
// live; other changes take effect on the next run.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg.Render.FPS != a.renderer.FPS() {
		if err := a.setFPS(cfg.Render.FPS); err != nil {
			slog.Warn("config: render.fps rejected", "error", err)
		}
	}
	if cfg.Camera != a.cfg.Camera {
		slog.Warn("config: camera changes require a restart")
	}
}
