package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"alerticorn/internal/config"
	"alerticorn/internal/event"
	"alerticorn/internal/metadata"
	"alerticorn/internal/render"
	"alerticorn/internal/telemetry"
	logx "alerticorn/pkg/logx"
)

// exitError carries a process exit code without printing anything.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "alerticorn",
		Short: "Send test and job notifications to chat webhooks",
		Long: `alerticorn turns test lifecycle events into Discord, Slack, and Teams messages.

Channels are resolved from the environment: a channel name "ci" on platform
"slack" reads AC_SLACK_CHANNEL_CI. A channel given as an http(s) URL is used
as is. Flags can also be set as ALERTICORN_<FLAG> environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.v.SetEnvPrefix("ALERTICORN")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.PersistentFlags().StringP("config", "c", "", "config file (JSON or YAML)")
	root.PersistentFlags().String("log-level", "", "log level override (trace, debug, info, warn, error)")
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("otlp-endpoint", "", "OTLP gRPC collector host:port for metrics and traces")
	root.PersistentFlags().Bool("otlp-insecure", false, "disable TLS to the OTLP collector")
	for _, name := range []string{"config", "log-level", "json", "otlp-endpoint", "otlp-insecure"} {
		_ = c.v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	root.AddCommand(c.sendCmd())
	root.AddCommand(c.watchCmd())
	root.AddCommand(c.channelsCmd())
	root.AddCommand(c.renderCmd())
	return root
}

// loadConfig returns the committed config and its manager. Without a
// config path the manager is nil and the config is empty.
func (c *cli) loadConfig(ctx context.Context) (*config.Manager, *config.Config, error) {
	path := strings.TrimSpace(c.v.GetString("config"))
	if path == "" {
		return nil, &config.Config{}, nil
	}
	m := config.NewManager(path)
	cfg, err := m.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return m, cfg, nil
}

// startTelemetry installs OTLP exporters when an endpoint is set. It must
// run before the engine is built so its instruments bind to them.
func (c *cli) startTelemetry(ctx context.Context, log logx.Logger) (func(), error) {
	p, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint: c.v.GetString("otlp-endpoint"),
		Insecure: c.v.GetBool("otlp-insecure"),
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Shutdown(sctx); err != nil {
			log.Warn("telemetry flush failed", logx.Err(err))
		}
	}, nil
}

func (c *cli) logging(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	if lvl := strings.TrimSpace(c.v.GetString("log-level")); lvl != "" {
		lc.Level = lvl
	}
	return lc
}

// messageFlags are shared by send and render.
type messageFlags struct {
	platform string
	channel  string
	title    string
	kind     string
	fields   []string
}

func (f *messageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.platform, "platform", "p", "", "platform tag (discord, slack, teams)")
	cmd.Flags().StringVar(&f.title, "title", "", "message heading")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", "event kind used for coloring (FAIL, SUCCESS, ...)")
	cmd.Flags().StringArrayVarP(&f.fields, "field", "f", nil, "extra field as name=value (repeatable)")
}

// builder wraps DefaultBody with the kind and extra fields from flags.
func (f *messageFlags) builder() (metadata.BodyBuilder, error) {
	var kind event.Kind
	if strings.TrimSpace(f.kind) != "" {
		k, err := event.ParseKind(f.kind)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	extra := make([]render.Field, 0, len(f.fields))
	for _, raw := range f.fields {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("field %q: want name=value", raw)
		}
		extra = append(extra, render.Field{Name: strings.TrimSpace(name), Value: value, Inline: true})
	}
	return func(title string, result any) render.Message {
		msg := metadata.DefaultBody(title, result)
		if kind != "" {
			msg.Kind = kind
		}
		msg.Fields = append(msg.Fields, extra...)
		return msg
	}, nil
}

// readText joins args, or reads stdin when there are none.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := readAllLimited(cmd.InOrStdin(), 1<<20)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\n"), nil
}
