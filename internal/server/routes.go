package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)
	r.Post("/login", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		// Outbound messages
		r.Post("/send-message", s.sendMessage)
		r.Post("/send-media", s.sendMedia)
		r.Post("/send-group-message", s.sendGroupMessage)
		r.Post("/clear-message", s.clearMessage)

		// Session management
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.createSession)
			r.Delete("/{sessionID}", s.removeSession)
		})

		r.Get("/config", s.getConfig)

		// Observers
		r.Get("/event", s.events)
		r.Get("/ws", s.socket)
	})
}
