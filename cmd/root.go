package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"keyroute/internal/config"
	"keyroute/internal/engine"
	"keyroute/internal/logger"
	"keyroute/internal/window"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// options holds the flags shared by every command.
type options struct {
	configPath string
	debug      bool
	logFormat  string
	logFile    string
}

var opts = &options{}

var rootCmd = &cobra.Command{
	Use:   "keyroute",
	Short: "Route global key events to the focused game window",
	Long: `keyroute watches selected keys and mouse buttons system-wide and
delivers them to callbacks registered for the target window that has focus.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "keyroute version %s\n", rootCmd.Version)
	},
}

// app is the state every command builds from the flags and config file.
type app struct {
	cfgMgr *config.Manager
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func (a *app) Close() {
	if err := a.closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
}

// setup loads the config file and builds the logger.
func setup() (*app, error) {
	var cfgMgr *config.Manager
	if opts.configPath != "" {
		cfgMgr = config.NewManagerAt(opts.configPath, nil)
	} else {
		m, err := config.NewManager(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize config: %w", err)
		}
		cfgMgr = m
	}
	if err := cfgMgr.Load(); err != nil {
		return nil, err
	}
	cfg := cfgMgr.Get()

	l, closer, err := logger.New(logOptions(cfg))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l)
	cfgMgr.SetLogger(l)

	return &app{cfgMgr: cfgMgr, cfg: cfg, logger: l, closer: closer}, nil
}

func logOptions(cfg *config.Config) logger.Options {
	o := logger.Options{
		Level:  cfg.General.LogLevel,
		Format: cfg.General.LogFormat,
		File:   cfg.General.LogFile,
	}
	if opts.debug {
		o.Level = "debug"
	}
	if opts.logFormat != "" {
		o.Format = opts.logFormat
	}
	if opts.logFile != "" {
		o.File = opts.logFile
	}
	return o
}

// newEngine builds an engine bound to the configured target executables.
func newEngine(cfg *config.Config, l *slog.Logger) *engine.Engine {
	return engine.New(engine.Options{
		Logger:      l,
		Finder:      window.NewProcessFinder(cfg.Targets.Executables, l),
		QueueSize:   cfg.Hook.QueueSize,
		StopTimeout: cfg.StopTimeout(),
	})
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (default: per-user config directory)")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Log file path (empty for no file logging)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(autostartCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
