package server

import (
	"net/http"
	"time"
)

// SlotHealth summarizes one latest-value slot.
type SlotHealth struct {
	Name      string    `json:"name"`
	Published uint64    `json:"published"`
	Taken     uint64    `json:"taken"`
	Dropped   uint64    `json:"dropped"`
	LastAt    time.Time `json:"last_published_at,omitempty"`
	Idle      bool      `json:"idle"`
}

// Health represents the health check response
type Health struct {
	Status    string       `json:"status"` // healthy, degraded, stopping
	Timestamp time.Time    `json:"timestamp"`
	RunID     string       `json:"run_id"`
	Uptime    string       `json:"uptime"`
	Reason    string       `json:"reason,omitempty"`
	FPS       float64      `json:"fps"`
	Renders   uint64       `json:"renders"`
	Skips     uint64       `json:"skips"`
	Slots     []SlotHealth `json:"slots"`
}

// handleHealth handles GET /health: 200 when healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	var h Health
	if s.health != nil {
		h = s.health()
	} else {
		h = Health{Status: "healthy"}
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now()
	}
	if !ready {
		h.Status = "not_ready"
		h.Reason = "server is not serving"
	}

	code := http.StatusOK
	if h.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, h)
}
