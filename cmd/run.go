package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"keyroute/internal/api"
	"keyroute/internal/autostart"
	"keyroute/internal/config"
	"keyroute/internal/engine"
	"keyroute/internal/input"
	"keyroute/internal/osutils"
	"keyroute/internal/tray"
	"keyroute/internal/window"

	"github.com/spf13/cobra"
)

// runFlags override the config file for a single run.
type runFlags struct {
	tray        bool
	noTray      bool
	port        int
	executables []string
}

var runOpts = &runFlags{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the input router service",
	Long: `Install the global input hooks and the foreground hook, keep the list of
target windows fresh and serve the event stream API until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.cfg
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runService(a, cfg)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOpts.tray, "tray", false, "Show the system tray icon")
	runCmd.Flags().BoolVar(&runOpts.noTray, "no-tray", false, "Hide the system tray icon")
	runCmd.Flags().IntVarP(&runOpts.port, "port", "p", 0, "API server port (0 keeps the configured port)")
	runCmd.Flags().StringSliceVarP(&runOpts.executables, "exe", "e", nil, "Target executable names (overrides the config)")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("tray") {
		cfg.General.Tray = runOpts.tray
	}
	if runOpts.noTray {
		cfg.General.Tray = false
	}
	if runOpts.port != 0 {
		cfg.API.Port = runOpts.port
	}
	if len(runOpts.executables) > 0 {
		cfg.Targets.Executables = runOpts.executables
	}
}

func runService(a *app, cfg *config.Config) error {
	l := a.logger

	if !osutils.IsAdmin() {
		l.Warn("Not running elevated; input posted to elevated game windows will be blocked")
	}
	if cfg.General.StartOnBoot && !autostart.IsEnabled() {
		if err := autostart.Enable("run"); err != nil {
			l.Warn("Failed to register start on boot", slog.String("error", err.Error()))
		}
	}

	eng := newEngine(cfg, l)
	watched := newConfigWatch(eng, l)
	watched.apply(cfg.Watch)

	eng.OnWindowFocused(func(h window.Handle) {
		if t, ok := eng.FocusedWindow(); ok {
			l.Debug("Target window focused", slog.String("window", h.String()), slog.String("title", t.Title))
		}
	})

	if err := eng.Start(); err != nil {
		return fmt.Errorf("start input hooks: %w", err)
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			l.Warn("Failed to stop input hooks", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go eng.RunWindowRefresh(ctx, cfg.RefreshInterval())

	// Register callback to rebind targets and watched keys when config changes (e.g. via API)
	a.cfgMgr.RegisterChangeCallback(func() {
		c := a.cfgMgr.Get()
		eng.SetFinder(window.NewProcessFinder(c.Targets.Executables, l))
		if _, err := eng.RefreshWindows(); err != nil {
			l.Warn("Window refresh failed", slog.String("error", err.Error()))
		}
		watched.apply(c.Watch)
		l.Info("Configuration reloaded", slog.Int("executables", len(c.Targets.Executables)), slog.Int("watched", len(c.Watch)))
	})

	if cfg.API.Enabled {
		srv := api.NewServer(a.cfgMgr, eng, l)
		go func() {
			if err := srv.Start(cfg.API.Port); err != nil {
				l.Error("API server unavailable", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	l.Info("keyroute running. Press Ctrl+C to stop.",
		slog.Any("executables", cfg.Targets.Executables),
		slog.Int("windows", eng.Windows().Len()),
	)

	if cfg.General.Tray {
		runTray(ctx, stop, eng, l)
	} else {
		<-ctx.Done()
	}

	l.Info("Shutting down...")
	return nil
}

// runTray blocks in the tray event loop until Quit or ctx is done.
func runTray(ctx context.Context, stop context.CancelFunc, eng *engine.Engine, l *slog.Logger) {
	t := tray.New("keyroute", "keyroute - input router")

	var listenID int
	listenID = t.AddCheckItem("Listening", eng.IsListening(), func() {
		var err error
		if eng.IsListening() {
			err = eng.StopListening()
		} else {
			err = eng.StartListening()
		}
		if err != nil {
			l.Error("Failed to toggle listening", slog.String("error", err.Error()))
		}
		t.SetItemChecked(listenID, eng.IsListening())
	})
	t.AddMenuItem("Refresh target windows", func() {
		n, err := eng.RefreshWindows()
		if err != nil {
			l.Warn("Window refresh failed", slog.String("error", err.Error()))
			return
		}
		l.Info("Target windows refreshed", slog.Int("windows", n))
	})

	t.AddSeparator()

	t.AddMenuItem("Quit", stop)

	go func() {
		<-ctx.Done()
		<-t.Ready()
		t.Stop()
	}()

	t.Run()
}

// configWatch holds the references the config file's watch list takes in
// the global filter, so a reload releases exactly what it added.
type configWatch struct {
	logger *slog.Logger

	mu   sync.Mutex
	eng  keyWatcher
	keys []input.KeyCode
}

type keyWatcher interface {
	WatchKey(code input.KeyCode)
	UnwatchKey(code input.KeyCode)
}

func newConfigWatch(eng keyWatcher, logger *slog.Logger) *configWatch {
	return &configWatch{eng: eng, logger: logger}
}

// apply swaps the watched keys for names. An invalid list is logged and
// leaves the current keys in place.
func (w *configWatch) apply(names []string) {
	keys, err := input.ParseKeys(names)
	if err != nil {
		w.logger.Warn("Ignoring invalid watch list", slog.Any("keys", names), slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range keys {
		w.eng.WatchKey(k)
	}
	for _, k := range w.keys {
		w.eng.UnwatchKey(k)
	}
	w.keys = keys
}
