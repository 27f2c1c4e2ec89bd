package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"keyroute/internal/engine"
	"keyroute/internal/input"
	"keyroute/internal/window"

	"github.com/spf13/cobra"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List discovered target windows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		eng := newEngine(a.cfg, a.logger)
		if _, err := eng.RefreshWindows(); err != nil {
			return err
		}
		printWindows(cmd.OutOrStdout(), eng.Windows().ListKnownWindows())
		return nil
	},
}

func printWindows(out io.Writer, targets []window.Target) {
	if len(targets) == 0 {
		fmt.Fprintln(out, "No target windows found")
		return
	}
	fmt.Fprintf(out, "%-12s %-7s %-16s %-10s %-22s %s\n", "HANDLE", "PID", "EXECUTABLE", "STATE", "BOUNDS", "TITLE")
	for _, t := range targets {
		bounds := "-"
		if r, err := window.Bounds(t.Handle); err == nil {
			bounds = fmt.Sprintf("%d,%d %dx%d", r.Left, r.Top, r.Width(), r.Height())
		}
		fmt.Fprintf(out, "%-12s %-7d %-16s %-10s %-22s %s\n", t.Handle, t.PID, t.Executable, windowState(t.Handle), bounds, t.Title)
	}
}

func windowState(h window.Handle) string {
	switch {
	case window.IsForeground(h):
		return "focused"
	case window.IsMinimized(h):
		return "minimized"
	case window.IsMaximized(h):
		return "maximized"
	}
	return "normal"
}

type sendFlags struct {
	window string
	title  string
	key    string
	text   string
	x, y   int32
	hold   time.Duration
}

var sendOpts = &sendFlags{}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Post a key, text or click into a target window",
	Long: `Post synthetic input into a target window without focusing it.
Select the window with --window (handle) or --title (case-insensitive substring).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (sendOpts.key == "") == (sendOpts.text == "") {
			return errors.New("exactly one of --key and --text is required")
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		eng := newEngine(a.cfg, a.logger)
		if _, err := eng.RefreshWindows(); err != nil {
			return err
		}
		target, err := selectWindow(eng.Windows().ListKnownWindows(), sendOpts.window, sendOpts.title)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := send(ctx, eng, target.Handle, sendOpts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s %q\n", target.Handle, target.Title)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendOpts.window, "window", "w", "", "Target window handle (e.g. 0x1A2B)")
	sendCmd.Flags().StringVarP(&sendOpts.title, "title", "t", "", "Target window title substring")
	sendCmd.Flags().StringVarP(&sendOpts.key, "key", "k", "", "Key or mouse button to press (e.g. F1, MOUSE1)")
	sendCmd.Flags().StringVar(&sendOpts.text, "text", "", "Text to type as characters")
	sendCmd.Flags().Int32Var(&sendOpts.x, "x", 0, "Click X in client coordinates")
	sendCmd.Flags().Int32Var(&sendOpts.y, "y", 0, "Click Y in client coordinates")
	sendCmd.Flags().DurationVar(&sendOpts.hold, "hold", input.DefaultHold, "Delay between press and release")
}

func send(ctx context.Context, eng *engine.Engine, h window.Handle, f *sendFlags) error {
	s := eng.Sender()
	if f.text != "" {
		return s.Text(ctx, h, f.text, 0)
	}
	code, err := input.ParseKey(f.key)
	if err != nil {
		return err
	}
	if code.IsMouse() {
		return s.Click(ctx, h, input.Click{X: f.x, Y: f.y, Button: code}, f.hold)
	}
	return s.Key(ctx, h, code, f.hold)
}

// selectWindow picks a target by handle, by title substring, or the only
// target when neither is given.
func selectWindow(targets []window.Target, handle, title string) (window.Target, error) {
	switch {
	case handle != "":
		v, err := strconv.ParseUint(handle, 0, 64)
		if err != nil {
			return window.Target{}, fmt.Errorf("invalid window handle %q: %w", handle, err)
		}
		for _, t := range targets {
			if t.Handle == window.Handle(v) {
				return t, nil
			}
		}
		return window.Target{}, fmt.Errorf("window %s is not a target window", window.Handle(v))

	case title != "":
		needle := strings.ToLower(title)
		for _, t := range targets {
			if strings.Contains(strings.ToLower(t.Title), needle) {
				return t, nil
			}
		}
		return window.Target{}, fmt.Errorf("no target window title contains %q", title)
	}

	switch len(targets) {
	case 0:
		return window.Target{}, errors.New("no target windows found")
	case 1:
		return targets[0], nil
	}
	return window.Target{}, fmt.Errorf("%d target windows found; pick one with --window or --title", len(targets))
}
