// Package testutil starts a complete gateway in-process for end-to-end tests.
package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/opencode-ai/wagate/internal/auth"
	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/router"
	"github.com/opencode-ai/wagate/internal/server"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/supervisor"
	"github.com/opencode-ai/wagate/internal/whatsapp"
	"github.com/opencode-ai/wagate/internal/whatsapp/loopback"
)

// TestServer wraps a running gateway for testing
type TestServer struct {
	Server     *server.Server
	Supervisor *supervisor.Supervisor
	Store      registry.Store
	Bus        *event.Bus
	Auth       *auth.Manager
	BaseURL    string
	DataDir    string

	ownsDir bool
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	dataDir   string
	backend   string
	users     []string
	pairDelay time.Duration
	groups    []whatsapp.Chat
}

// WithDataDir reuses dir for the registry and credentials, so a second
// server started on it restores the first one's sessions.
func WithDataDir(dir string) TestServerOption {
	return func(c *testServerConfig) {
		c.dataDir = dir
	}
}

// WithBackend selects the registry backend.
func WithBackend(backend string) TestServerOption {
	return func(c *testServerConfig) {
		c.backend = backend
	}
}

// WithUsers enables token authentication for users.
func WithUsers(users ...string) TestServerOption {
	return func(c *testServerConfig) {
		c.users = users
	}
}

// WithPairDelay sets how long new loopback sessions take to pair.
func WithPairDelay(d time.Duration) TestServerOption {
	return func(c *testServerConfig) {
		c.pairDelay = d
	}
}

// WithGroups makes groups visible to every session.
func WithGroups(groups ...whatsapp.Chat) TestServerOption {
	return func(c *testServerConfig) {
		c.groups = groups
	}
}

// StartTestServer creates and starts a test server
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{pairDelay: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(cfg)
	}

	dataDir := cfg.dataDir
	ownsDir := false
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "wagate-test-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		dataDir = dir
		ownsDir = true
	}
	cleanup := func() {
		if ownsDir {
			os.RemoveAll(dataDir)
		}
	}

	port, err := findAvailablePort()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	ctx := context.Background()

	registryPath := filepath.Join(dataDir, "whatsapp-sessions.json")
	if cfg.backend == registry.BackendSQLite {
		registryPath = filepath.Join(dataDir, "sessions.db")
	}
	store, err := registry.Open(ctx, cfg.backend, registryPath)
	if err != nil {
		cleanup()
		return nil, err
	}

	bus := event.NewBus(store.Load, 256)
	driver := &loopback.Driver{PairDelay: cfg.pairDelay, Groups: cfg.groups}

	sup, err := supervisor.New(supervisor.Config{
		Store:       store,
		Bus:         bus,
		Factory:     driver.Factory,
		Credentials: storage.New(filepath.Join(dataDir, "auth")),
	})
	if err != nil {
		store.Close()
		cleanup()
		return nil, err
	}

	if _, err := supervisor.Bootstrap(ctx, store, sup); err != nil {
		sup.Close(ctx)
		store.Close()
		cleanup()
		return nil, err
	}

	authMgr := auth.NewManager(cfg.users, time.Hour)

	serverConfig := server.DefaultConfig()
	serverConfig.Hostname = "127.0.0.1"
	serverConfig.Port = port

	srv := server.New(serverConfig, server.Deps{
		Sessions: sup,
		Router:   router.New(sup, router.WithTimeout(10*time.Second)),
		Bus:      bus,
		Auth:     authMgr,
	})

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(ctx)
		sup.Close(ctx)
		store.Close()
		cleanup()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:     srv,
		Supervisor: sup,
		Store:      store,
		Bus:        bus,
		Auth:       authMgr,
		BaseURL:    baseURL,
		DataDir:    dataDir,
		ownsDir:    ownsDir,
		port:       port,
	}, nil
}

// Stop shuts the gateway down the way serve does: live sessions are
// closed but the registry is kept.
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if ts.Server != nil {
		firstErr = ts.Server.Shutdown(ctx)
	}
	if ts.Supervisor != nil {
		if err := ts.Supervisor.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.Store != nil {
		ts.Store.Close()
	}
	if ts.ownsDir {
		os.RemoveAll(ts.DataDir)
	}
	return firstErr
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// Loopback returns the loopback client of a live session.
func (ts *TestServer) Loopback(id string) (*loopback.Client, bool) {
	c, ok := ts.Supervisor.Client(id)
	if !ok {
		return nil, false
	}
	lc, ok := c.(*loopback.Client)
	return lc, ok
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
