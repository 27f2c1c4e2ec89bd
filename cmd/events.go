package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"keyroute/internal/client"
	"keyroute/internal/protocol"
	"keyroute/internal/window"

	"github.com/spf13/cobra"
)

type eventsFlags struct {
	addr      string
	token     string
	subscribe []string
}

var eventsOpts = &eventsFlags{}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the event stream of a running keyroute service",
	Long: `Connect to the WebSocket API of a running service and print every
message as a JSON line. Subscriptions use KEY[:down|up][@HANDLE], for
example F1, MOUSE4:up or F2:down@0x1A2B.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		target := eventsOpts.addr
		if target == "" {
			target = fmt.Sprintf("127.0.0.1:%d", a.cfg.API.Port)
		}
		token := eventsOpts.token
		if token == "" {
			token = a.cfg.API.Token
		}

		c := client.New(target, token, a.logger)
		for _, s := range eventsOpts.subscribe {
			h, key, dir, err := parseSubscription(s)
			if err != nil {
				return err
			}
			if err := c.Subscribe(h, key, dir); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		c.OnMessage = func(m protocol.Message) { enc.Encode(m) }
		c.Start()
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsOpts.addr, "addr", "a", "", "Server address (default: 127.0.0.1 and the configured port)")
	eventsCmd.Flags().StringVar(&eventsOpts.token, "token", "", "API token (default: the configured token)")
	eventsCmd.Flags().StringSliceVarP(&eventsOpts.subscribe, "subscribe", "s", nil, "Subscriptions as KEY[:down|up][@HANDLE]")
}

// parseSubscription splits KEY[:DIR][@HANDLE].
func parseSubscription(s string) (window.Handle, string, string, error) {
	var h window.Handle
	if key, handle, ok := strings.Cut(s, "@"); ok {
		v, err := strconv.ParseUint(handle, 0, 64)
		if err != nil {
			return 0, "", "", fmt.Errorf("invalid window handle in %q: %w", s, err)
		}
		h = window.Handle(v)
		s = key
	}
	key, dir, _ := strings.Cut(s, ":")
	if key == "" {
		return 0, "", "", fmt.Errorf("missing key in subscription %q", s)
	}
	if dir == "" {
		dir = "down"
	}
	return h, key, dir, nil
}
