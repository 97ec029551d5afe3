package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alerticorn/internal/config"
	"alerticorn/internal/dispatch"
	"alerticorn/internal/metadata"
	logx "alerticorn/pkg/logx"
)

func (c *cli) sendCmd() *cobra.Command {
	var f messageFlags
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send one notification",
		Long: `Send renders text (or stdin) for a platform and posts it to a channel.
Platform and channel fall back to AC_DEFAULT_PLATFORM and AC_DEFAULT_CHANNEL.`,
		Example: `  alerticorn send -p slack --channel deploys --title "Deploy" "v1.4 is live"
  make test 2>&1 | alerticorn send -p discord --channel ci -k FAIL --title "Nightly"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			body, err := f.builder()
			if err != nil {
				return err
			}
			_, cfg, err := c.loadConfig(ctx)
			if err != nil {
				return err
			}
			svc, log := logx.New(c.logging(cfg))
			defer svc.Close()
			flush, err := c.startTelemetry(ctx, log)
			if err != nil {
				return err
			}
			defer flush()

			eng, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer eng.Shutdown(context.Background())

			d := eng.RunWith(ctx, f.platform, f.channel, f.title, body, metadata.Payload(text))
			if c.v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), d)
			}
			if !d.Delivered() {
				return fmt.Errorf("not delivered: %s", d.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s (status %d, %d attempt(s))\n", d.Platform, d.Status, d.Attempts)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&f.channel, "channel", "", "channel name or webhook URL")
	return cmd
}

func newEngine(cfg *config.Config, log logx.Logger) (*dispatch.Engine, error) {
	dc, err := cfg.DispatchConfig()
	if err != nil {
		return nil, err
	}
	return dispatch.New(dc, dispatch.WithLogger(log)), nil
}
