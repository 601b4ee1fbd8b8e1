package server

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/pkg/types"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Uptime    string  `json:"uptime"`
	Sessions  int     `json:"sessions"`
	Live      int     `json:"live"`
	Ready     int     `json:"ready"`
	Observers int     `json:"observers"`
	RSS       uint64  `json:"rss,omitempty"`
	CPU       float64 `json:"cpu,omitempty"`
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}

	if s.sessions != nil {
		sessions, err := s.sessions.Status(r.Context())
		if err != nil {
			resp.Status = "degraded"
			logging.Warn().Err(err).Msg("health: registry unavailable")
		}
		resp.Sessions = len(sessions)
		for _, st := range sessions {
			if st.Live {
				resp.Live++
			}
			if st.State == types.StateReady {
				resp.Ready++
			}
		}
	}
	if s.bus != nil {
		resp.Observers = s.bus.ObserverCount()
	}

	if proc, err := process.NewProcessWithContext(r.Context(), int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(r.Context()); err == nil {
			resp.RSS = mem.RSS
		}
		if cpu, err := proc.CPUPercentWithContext(r.Context()); err == nil {
			resp.CPU = cpu
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
