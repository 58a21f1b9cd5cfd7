// Command relaunch-demo runs a small worker application through a
// relauncher. Each worker is a non-daemon thread; the process exits once
// all of them have finished.
//
//	relaunch-demo --workers 4 --work 500ms
//	relaunch-demo --isolation exec --agent ./agents/trace.jar
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zhangyunhao116/relaunch"
	"github.com/zhangyunhao116/relaunch/agent"
	"github.com/zhangyunhao116/relaunch/internal/logs"
	"github.com/zhangyunhao116/relaunch/loader"
	"github.com/zhangyunhao116/relaunch/thread"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{argv: os.Args[1:]}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "relaunch-demo:", err)
		os.Exit(1)
	}
}

// app is what the process hands the command.
type app struct {
	// argv is the raw argument list. It is relaunched verbatim and is what
	// the entry receives, in process and in an exec child alike.
	argv []string

	// opts are appended to the relauncher options.
	opts []relaunch.Option

	// newLogger defaults to logs.New.
	newLogger func(w io.Writer, level slog.Leveler) *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "relaunch-demo",
		Short:        "Run a worker application inside an isolated loader",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, v)
		},
	}
	cmd.SetArgs(a.argv)

	registerFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("RELAUNCH_DEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func registerFlags(f *pflag.FlagSet) {
	f.String("config", "", "YAML configuration file")
	f.String("isolation", string(relaunch.IsolationInProcess), "isolation mode: in-process or exec")
	f.Bool("namespaces", false, "start the exec child in new namespaces (Linux)")
	f.StringSlice("agent", nil, "agent path to attach, repeatable")
	f.Int("workers", 3, "number of worker threads")
	f.Duration("work", 200*time.Millisecond, "how long each worker runs")
	f.Duration("drain-timeout", 0, "bound on the wait for workers, 0 waits forever")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
}

// buildConfig layers flags and RELAUNCH_DEMO_* variables over the config
// file, which is layered over the defaults.
func buildConfig(v *viper.Viper) (*relaunch.Config, error) {
	cfg := relaunch.DefaultConfig()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = relaunch.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if v.IsSet("isolation") {
		cfg.Isolation = relaunch.IsolationMode(v.GetString("isolation"))
	}
	if v.IsSet("namespaces") {
		cfg.Namespaces = v.GetBool("namespaces")
	}
	if v.IsSet("drain-timeout") {
		cfg.DrainTimeout = v.GetDuration("drain-timeout")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// agentArgs renders agent paths in the attachment syntax of cfg.
func agentArgs(cfg relaunch.AgentConfig, paths []string) agent.StaticArgs {
	args := make(agent.StaticArgs, 0, len(paths))
	for _, p := range paths {
		args = append(args, cfg.Marker+p)
	}
	return args
}

func (a *app) run(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()
	newLogger := a.newLogger
	if newLogger == nil {
		newLogger = logs.New
	}
	logger := newLogger(cmd.ErrOrStderr(), logs.ParseLevel(v.GetString("log-level")))

	cfg, err := buildConfig(v)
	if err != nil {
		return err
	}
	cfg.Logger = logger

	reg := prometheus.NewRegistry()
	workers, work := v.GetInt("workers"), v.GetDuration("work")
	metricsAddr := v.GetString("metrics-addr")

	var r *relaunch.Relauncher
	cfg.Entry = func(ctx context.Context, args []string) error {
		l, _ := loader.FromContext(ctx)
		logger.Info("application started", "loader", l.Name(), "paths", l.Paths(), "args", args)
		if metricsAddr != "" {
			r.Go(ctx, "metrics", func(ctx context.Context) {
				serveMetrics(ctx, logger, metricsAddr, reg)
			}, thread.Daemon())
		}
		for i := range workers {
			name := fmt.Sprintf("worker-%d", i)
			r.Go(ctx, name, func(ctx context.Context) {
				doWork(ctx, logger, name, work*time.Duration(i+1))
			})
		}
		return nil
	}

	opts := append([]relaunch.Option{
		relaunch.WithArgsProvider(agentArgs(cfg.Agent, v.GetStringSlice("agent"))),
		relaunch.WithRegisterer(reg),
	}, a.opts...)
	r, err = relaunch.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := r.Launch(ctx, a.argv); err != nil {
		return err
	}

	// Reached only in an already isolated process, e.g. an exec child.
	mt := r.Group().Main()
	ctx = thread.NewContext(loader.NewContext(ctx, mt.Active()), mt)
	if err := cfg.Entry(ctx, a.argv); err != nil {
		return err
	}
	return r.Group().Wait(ctx)
}

func doWork(ctx context.Context, logger *slog.Logger, name string, d time.Duration) {
	l, _ := loader.FromContext(ctx)
	logger.Info("worker started", "worker", name, "loader", l.Name(), "duration", d)
	select {
	case <-time.After(d):
		logger.Info("worker finished", "worker", name)
	case <-ctx.Done():
		logger.Warn("worker cancelled", "worker", name, "error", ctx.Err())
	}
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
