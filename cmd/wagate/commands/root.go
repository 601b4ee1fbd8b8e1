// Package commands provides the CLI commands for wagate.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wagate/internal/config"
	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "wagate",
	Short: "wagate - multi-account messaging gateway",
	Long: `wagate runs any number of messaging accounts side by side and exposes
them through one HTTP API.

Run 'wagate serve' to start the gateway, or 'wagate sessions' to inspect
the persisted session registry.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print human-readable logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Working directory (project config and .env)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("wagate %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// loadConfig resolves the working directory, creates the data directories
// and loads the configuration.
func loadConfig() (*types.Config, *config.Paths, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, nil, err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, nil, fmt.Errorf("create data directories: %w", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, paths, nil
}

// initLogging configures the global logger. An explicit --log-level wins
// over the configured level.
func initLogging(cmd *cobra.Command, cfg *types.Config, paths *config.Paths, toFile bool) {
	level := logLevel
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}

	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(level)
	lc.Pretty = printLogs
	lc.LogToFile = toFile
	lc.LogDir = paths.LogPath()
	logging.Init(lc)
}
