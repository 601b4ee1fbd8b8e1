package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wagate/internal/auth"
	"github.com/opencode-ai/wagate/internal/event"
	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/registry"
	"github.com/opencode-ai/wagate/internal/router"
	"github.com/opencode-ai/wagate/internal/server"
	"github.com/opencode-ai/wagate/internal/storage"
	"github.com/opencode-ai/wagate/internal/supervisor"
	"github.com/opencode-ai/wagate/internal/whatsapp/loopback"
	"github.com/opencode-ai/wagate/pkg/types"
)

const (
	shutdownTimeout  = 30 * time.Second
	tokenSweepPeriod = time.Minute
	dispatchTimeout  = 60 * time.Second
)

var (
	servePort     int
	serveHostname string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway: restore every persisted session, then serve the
HTTP API until interrupted.

On SIGINT or SIGTERM the server stops accepting requests and every live
session is shut down without touching the registry, so the next start
restores them all.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, 8000)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config, 0.0.0.0)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Create sessions added to the registry file while running")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("hostname") {
		cfg.Hostname = serveHostname
	}
	if cmd.Flags().Changed("watch") {
		cfg.Registry.Watch = serveWatch
	}
	initLogging(cmd, cfg, paths, true)
	defer logging.Close()

	logging.Info().
		Str("version", Version).
		Str("registry", cfg.Registry.Path).
		Str("backend", cfg.Registry.Backend).
		Msg("Starting wagate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := registry.Open(ctx, cfg.Registry.Backend, cfg.Registry.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := event.NewBus(store.Load, cfg.Bus.QueueSize)
	defer bus.Close()
	go func() {
		if err := bus.RunAuditLog(ctx); err != nil {
			logging.Warn().Err(err).Msg("audit log stopped")
		}
	}()

	driver := &loopback.Driver{PairDelay: cfg.Driver.PairDelay.Std()}
	sup, err := supervisor.New(supervisor.Config{
		Store:       store,
		Bus:         bus,
		Factory:     driver.Factory,
		Credentials: storage.New(cfg.Credentials.Path),
		Restart:     restartConfig(cfg.Restart),
	})
	if err != nil {
		return err
	}

	if _, err := supervisor.Bootstrap(ctx, store, sup); err != nil {
		sup.Close(context.Background())
		return err
	}

	if cfg.Registry.Watch {
		stopWatch, err := watchRegistry(store, sup)
		if err != nil {
			logging.Warn().Err(err).Msg("registry watch disabled")
		} else {
			defer stopWatch()
		}
	}

	authMgr := auth.NewManager(cfg.Auth.Users, cfg.Auth.TokenTTL.Std())
	if !authMgr.Enabled() {
		logging.Warn().Msg("No auth users configured, API is open")
	}
	go authMgr.Run(ctx, tokenSweepPeriod)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.Port
	serverConfig.Hostname = cfg.Hostname
	serverConfig.CORSOrigins = cfg.CORS.Origins
	serverConfig.MaxMediaBytes = cfg.Media.MaxBytes

	srv := server.New(serverConfig, server.Deps{
		Sessions: sup,
		Router:   router.New(sup, router.WithTimeout(dispatchTimeout)),
		Bus:      bus,
		Auth:     authMgr,
		Config:   cfg,
	})

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr()).Msg("Server listening")
		errCh <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown")
	}
	if err := sup.Close(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("session shutdown")
	}

	logging.Info().Msg("Server stopped")
	return serveErr
}

func restartConfig(c types.RestartConfig) supervisor.RestartConfig {
	return supervisor.RestartConfig{
		InitialInterval: c.InitialInterval.Std(),
		MaxInterval:     c.MaxInterval.Std(),
		MaxElapsed:      c.MaxElapsed.Std(),
	}
}

// watchRegistry reconciles the supervisor with external edits of the
// registry file. Only the file backend can be watched.
func watchRegistry(store registry.Store, sup *supervisor.Supervisor) (func(), error) {
	fs, ok := store.(*registry.FileStore)
	if !ok {
		return nil, fmt.Errorf("backend does not support watching")
	}
	w, err := registry.NewWatcher(fs, func(ds []types.SessionDescriptor) {
		sup.Reconcile(context.Background(), ds)
	})
	if err != nil {
		return nil, err
	}
	w.Start()
	return w.Stop, nil
}
