package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"alerticorn/internal/config"
	"alerticorn/internal/debugsrv"
	"alerticorn/internal/dispatch"
	"alerticorn/internal/event"
	"alerticorn/internal/eventbus"
	"alerticorn/internal/host/gotest"
	"alerticorn/internal/runtime/supervisor"
	logx "alerticorn/pkg/logx"
)

type watchFlags struct {
	input       string
	suite       string
	passthrough bool
	exitCode    bool
	debugAddr   string
}

func (c *cli) watchCmd() *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Notify from a `go test -json` stream",
		Long: `watch reads test2json records (stdin by default) and notifies per the
suite, groups, and items declared in the config file. The config is
reloaded when the file changes.`,
		Example: `  go test -json ./... | alerticorn watch -c alerticorn.yaml --passthrough`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			sum, err := c.watch(ctx, cmd, f)
			if err != nil {
				return err
			}
			if f.exitCode && sum.Failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "read from file instead of stdin")
	cmd.Flags().StringVar(&f.suite, "suite", "go test", "suite name used in suite notifications")
	cmd.Flags().BoolVar(&f.passthrough, "passthrough", false, "copy the input stream to stdout")
	cmd.Flags().BoolVar(&f.exitCode, "exit-code", true, "exit 1 when any test failed")
	cmd.Flags().StringVar(&f.debugAddr, "debug-addr", "", "serve pprof and engine status on this address")
	return cmd
}

func (c *cli) watch(ctx context.Context, cmd *cobra.Command, f watchFlags) (event.Summary, error) {
	var sum event.Summary
	m, cfg, err := c.loadConfig(ctx)
	if err != nil {
		return sum, err
	}
	svc, log := logx.New(c.logging(cfg))
	defer svc.Close()
	flush, err := c.startTelemetry(ctx, log)
	if err != nil {
		return sum, err
	}
	defer flush()

	rules, err := cfg.Rules()
	if err != nil {
		return sum, err
	}
	eng, err := newEngine(cfg, log)
	if err != nil {
		return sum, err
	}
	// Lanes outlive ctx so queued notifications drain after an interrupt.
	if err := eng.Start(context.Background()); err != nil {
		return sum, err
	}

	if f.debugAddr != "" {
		tally := countDeliveries(eng.Bus())
		defer tally.stop()
		dbg := debugsrv.New(log, func() any { return engineStatus(eng, tally) })
		if err := dbg.Start(debugsrv.Config{Addr: f.debugAddr}); err != nil {
			return sum, fmt.Errorf("debug server: %w", err)
		}
		defer dbg.Stop(context.Background())
	}

	in := cmd.InOrStdin()
	if f.input != "" {
		file, err := os.Open(f.input)
		if err != nil {
			return sum, err
		}
		defer file.Close()
		in = file
	}
	if f.passthrough {
		in = io.TeeReader(in, cmd.OutOrStdout())
	}

	adapter := gotest.New(eng,
		gotest.WithScopes(rules),
		gotest.WithSuiteID(f.suite),
		gotest.WithLogger(log.With(logx.String("comp", "gotest"))),
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if m != nil {
		m.SetLogger(log.With(logx.String("comp", "config")))
		sub := m.Subscribe(1)
		g.Go(func() error { return m.Watch(runCtx) })
		g.Go(func() error {
			defer m.Unsubscribe(sub)
			c.applyReloads(runCtx, sub, cfg, adapter, svc, log)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		s, err := adapter.Run(runCtx, in)
		sum = s
		return err
	})

	err = g.Wait()
	rep := eng.Shutdown(context.Background())
	if rep.Dropped > 0 {
		log.Warn("notifications dropped at shutdown", logx.Int("dropped", rep.Dropped))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return sum, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "alerticorn: %d tests, %d passed, %d failed, %d skipped\n",
		sum.Total, sum.Passed, sum.Failed, sum.Skipped)
	return sum, nil
}

// applyReloads swaps scope rules and logging on every committed config.
// Engine and transport settings take effect on the next run.
func (c *cli) applyReloads(ctx context.Context, sub <-chan *config.Config, cur *config.Config, adapter *gotest.Adapter, svc *logx.Service, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			rules, err := next.Rules()
			if err != nil {
				log.Warn("reloaded config has invalid scopes", logx.Err(err))
				continue
			}
			adapter.SetScopes(rules)
			svc.Apply(c.logging(next))
			changed, fields := config.SummarizeChange(cur, next)
			fields = append(fields, logx.Any("sections", changed))
			log.Info("config applied", fields...)
			cur = next
		}
	}
}

type statusView struct {
	Workers    int                `json:"workers"`
	QueueSize  int                `json:"queue_size"`
	EnvTaken   time.Time          `json:"env_taken"`
	Sent       int64              `json:"sent"`
	Dropped    int64              `json:"dropped"`
	BusDropped uint64             `json:"bus_dropped"`
	Lanes      []supervisor.Stats `json:"lanes"`
}

func engineStatus(eng *dispatch.Engine, t *deliveryTally) statusView {
	cfg := eng.Config()
	v := statusView{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		EnvTaken:   eng.Channels().TakenAt(),
		Sent:       t.sent.Load(),
		Dropped:    t.dropped.Load(),
		BusDropped: eng.Bus().Dropped(),
	}
	if sup := eng.Supervisor(); sup != nil {
		v.Lanes = sup.Snapshot()
	}
	return v
}

// deliveryTally counts finished jobs seen on the engine bus. Counts are
// best effort: the bus drops events when the buffer is full.
type deliveryTally struct {
	sent    atomic.Int64
	dropped atomic.Int64
	unsub   func()
	done    chan struct{}
}

func countDeliveries(bus eventbus.Bus) *deliveryTally {
	ch, unsub := bus.Subscribe(256, eventbus.TypeSent, eventbus.TypeDropped)
	t := &deliveryTally{unsub: unsub, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		for e := range ch {
			if e.Type == eventbus.TypeSent {
				t.sent.Add(1)
			} else {
				t.dropped.Add(1)
			}
		}
	}()
	return t
}

func (t *deliveryTally) stop() {
	t.unsub()
	<-t.done
}
