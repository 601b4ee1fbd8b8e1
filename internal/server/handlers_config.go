package server

import (
	"net/http"

	"github.com/opencode-ai/wagate/pkg/types"
)

// getConfig handles GET /config. User names are not exposed.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		writeJSON(w, http.StatusOK, types.Config{})
		return
	}
	cfg := *s.appConfig
	cfg.Auth.Users = nil
	writeJSON(w, http.StatusOK, cfg)
}
