package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/wagate/internal/auth"
	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/router"
	"github.com/opencode-ai/wagate/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port          int
	Hostname      string
	CORSOrigins   []string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxMediaBytes int64
	MediaTimeout  time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:          8000,
		Hostname:      "0.0.0.0",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  0, // No write timeout for SSE and websockets
		MaxMediaBytes: 16 << 20,
		MediaTimeout:  30 * time.Second,
	}
}

// Sessions is the session management surface the API exposes.
type Sessions interface {
	CreateSession(ctx context.Context, id, description string) error
	RemoveSession(ctx context.Context, id string) error
	Status(ctx context.Context) ([]types.SessionStatus, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Sessions Sessions
	Router   *router.Router
	Bus      *event.Bus
	Auth     *auth.Manager
	// Config is the loaded configuration, served read-only at /config.
	Config *types.Config
}

// Server is the HTTP server.
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	sessions  Sessions
	dispatch  *router.Router
	bus       *event.Bus
	auth      *auth.Manager
	appConfig *types.Config
	media     *mediaFetcher
	started   time.Time
}

// New creates a new Server instance.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewManager(nil, 0)
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		sessions:  deps.Sessions,
		dispatch:  deps.Router,
		bus:       deps.Bus,
		auth:      deps.Auth,
		appConfig: deps.Config,
		media:     newMediaFetcher(cfg.MaxMediaBytes, cfg.MediaTimeout),
		started:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"auth-token", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Hostname, strconv.Itoa(s.config.Port))
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
