package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"keyroute/internal/input"
	"keyroute/internal/router"
	"keyroute/internal/window"

	"github.com/spf13/cobra"
)

var watchGlobal bool

var watchCmd = &cobra.Command{
	Use:   "watch KEY...",
	Short: "Print routed key events until interrupted",
	Long: `Subscribe to the given keys on every target window and print each
press and release delivered to the focused target, plus focus changes.
Keys are names such as A, F5, NUM1, MOUSE4 or numeric virtual-key codes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := input.ParseKeys(args)
		if err != nil {
			return err
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		eng := newEngine(a.cfg, a.logger)
		w := newWindowWatch(eng, keys, out)
		eng.Windows().OnChange(w.sync)

		eng.OnWindowFocused(func(h window.Handle) {
			if t, ok := eng.FocusedWindow(); ok {
				w.printf("focus  %s %q\n", h, t.Title)
			}
		})
		if watchGlobal {
			eng.OnKeyDown(func(k input.KeyCode) { w.printf("global %s down\n", k) })
			eng.OnKeyUp(func(k input.KeyCode) { w.printf("global %s up\n", k) })
		}

		if err := eng.Start(); err != nil {
			return err
		}
		defer eng.Stop()
		w.sync(eng.Windows().ListKnownWindows())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go eng.RunWindowRefresh(ctx, a.cfg.RefreshInterval())

		fmt.Fprintf(out, "Watching %d key(s) on %d target window(s). Press Ctrl+C to stop.\n", len(keys), eng.Windows().Len())
		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVarP(&watchGlobal, "global", "g", false, "Also print events outside target windows")
}

type keySubscriber interface {
	SubscribeKeyDown(target window.Handle, key input.KeyCode, cb router.Callback) bool
	SubscribeKeyUp(target window.Handle, key input.KeyCode, cb router.Callback) bool
	UnsubscribeKeyDown(target window.Handle, key input.KeyCode) bool
	UnsubscribeKeyUp(target window.Handle, key input.KeyCode) bool
}

// windowWatch keeps one down and one up subscription per key on every
// known target window.
type windowWatch struct {
	sub  keySubscriber
	keys []input.KeyCode

	outMu sync.Mutex
	out   io.Writer

	mu     sync.Mutex
	active map[window.Handle]bool
}

func newWindowWatch(sub keySubscriber, keys []input.KeyCode, out io.Writer) *windowWatch {
	return &windowWatch{sub: sub, keys: keys, out: out, active: make(map[window.Handle]bool)}
}

func (w *windowWatch) printf(format string, args ...any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

// sync subscribes new targets and drops the ones that disappeared.
func (w *windowWatch) sync(targets []window.Target) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[window.Handle]bool, len(targets))
	for _, t := range targets {
		seen[t.Handle] = true
		if w.active[t.Handle] {
			continue
		}
		for _, k := range w.keys {
			w.sub.SubscribeKeyDown(t.Handle, k, func(t window.Target, k input.KeyCode) {
				w.printf("window %s %q %s down\n", t.Handle, t.Title, k)
			})
			w.sub.SubscribeKeyUp(t.Handle, k, func(t window.Target, k input.KeyCode) {
				w.printf("window %s %q %s up\n", t.Handle, t.Title, k)
			})
		}
		w.active[t.Handle] = true
	}

	for h := range w.active {
		if seen[h] {
			continue
		}
		for _, k := range w.keys {
			w.sub.UnsubscribeKeyDown(h, k)
			w.sub.UnsubscribeKeyUp(h, k)
		}
		delete(w.active, h)
	}
}
