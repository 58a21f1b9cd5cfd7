package relaunch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/relaunch/agent"
	"github.com/zhangyunhao116/relaunch/internal/metrics"
	"github.com/zhangyunhao116/relaunch/launcher"
	"github.com/zhangyunhao116/relaunch/loader"
	"github.com/zhangyunhao116/relaunch/thread"
)

// osExitFn is the default exit function. Tests replace it.
var osExitFn = os.Exit

// launching is held by the Launch that captured the entry, process-wide,
// until that Launch returns. With the default exit function it never does.
var launching atomic.Bool

// EntryMethod is the captured entry of the application: the thread that
// called Launch and the routine to run inside the isolated loader.
type EntryMethod struct {
	Thread *thread.Thread
	Entry  launcher.Entry
}

// Relauncher moves an application into an isolated loader, waits for its
// non-daemon threads and terminates the process.
//
// A Relauncher is used once. Launch calls after the first are no-ops.
type Relauncher struct {
	cfg      Config
	logger   *slog.Logger
	launcher launcher.Launcher
	resolver *agent.Resolver
	group    *thread.Group
	exit     func(code int)
	metrics  *metrics.Metrics

	// reenter is the re-entry routine. It is bound once in New and never
	// looked up by name.
	reenter func(ctx context.Context, args []string) error

	mu    sync.Mutex
	state State
	entry *EntryMethod
}

// New creates a Relauncher for cfg. A nil cfg means DefaultConfig().
//
// The main thread of the group starts with the system loader as its active
// loader. In a process started by an Exec launcher that loader is already
// isolated, so Launch does nothing there.
func New(cfg *Config, opts ...Option) (*Relauncher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := cfg.clone()
	if c.Name == "" {
		c.Name = "main"
	}

	o := options{exit: osExitFn}
	for _, opt := range opts {
		opt(&o)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if o.provider == nil {
		o.provider = &loader.EnvProvider{Inherit: launcher.Inherit}
	}
	system, err := o.provider.System()
	if err != nil {
		return nil, fmt.Errorf("relaunch: system loader: %w", err)
	}

	if o.group == nil {
		o.group = thread.NewGroup(c.Name)
	}
	if o.group.Main().Active() == nil {
		o.group.Main().Restore(system)
	}

	if o.launcher == nil {
		switch c.Isolation {
		case IsolationExec:
			o.launcher = launcher.NewExec(&launcher.ExecConfig{
				Namespaces: c.Namespaces,
				Env:        c.Env,
				Logger:     logger,
			})
		default:
			o.launcher = launcher.NewInProcess(logger)
		}
	}
	if o.args == nil {
		o.args = agent.ProcessArgs{}
	}

	r := &Relauncher{
		cfg:      c,
		logger:   logger.With("component", "relaunch"),
		launcher: o.launcher,
		resolver: &agent.Resolver{
			Marker:    c.Agent.Marker,
			Separator: c.Agent.Separator,
			Args:      o.args,
		},
		group:   o.group,
		exit:    o.exit,
		metrics: metrics.New(o.registerer),
		state:   StateNotStarted,
	}
	r.reenter = r.remain
	return r, nil
}

// Main builds a Relauncher from cfg and launches the application with args.
// It only returns in an already isolated process. Any failure panics with
// a *Error.
func Main(cfg *Config, args []string, opts ...Option) *Relauncher {
	r, err := New(cfg, opts...)
	if err != nil {
		panic(&Error{State: StateNotStarted, Err: err})
	}
	if err := r.Launch(context.Background(), args); err != nil {
		panic(err)
	}
	return r
}

// State returns the current protocol state.
func (r *Relauncher) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Group returns the thread group drained by Launch.
func (r *Relauncher) Group() *thread.Group {
	return r.group
}

// Go spawns a thread in the relauncher's group. Threads started from the
// entry inherit the isolated loader through ctx.
func (r *Relauncher) Go(ctx context.Context, name string, fn func(ctx context.Context), opts ...thread.SpawnOption) *thread.Thread {
	return r.group.Go(ctx, name, fn, opts...)
}

func (r *Relauncher) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Launch runs the relaunch protocol. It returns nil without doing anything
// if Launch already ran, if the main thread or ctx already carries an
// isolated loader, or if another Launch in this process is under way, as
// when a second entry point bootstraps from inside the application. Otherwise it
// runs the application in an isolated loader, waits for every non-daemon
// thread of the group and calls the exit function with status 0. Failures
// are returned as *Error and leave the relauncher in StateFailed.
func (r *Relauncher) Launch(ctx context.Context, args []string) error {
	r.mu.Lock()
	if r.state != StateNotStarted {
		r.mu.Unlock()
		return nil
	}
	main := r.group.Main()
	if l := isolatedLoader(ctx, main); l != nil {
		r.alreadyIsolated(ctx, l.Name())
		return nil
	}
	if !launching.CompareAndSwap(false, true) {
		r.alreadyIsolated(ctx, "")
		return nil
	}
	defer launching.Store(false)

	if r.cfg.Entry == nil {
		r.mu.Unlock()
		return r.fail(ctx, StateNotStarted, ErrEntryResolution)
	}
	r.entry = &EntryMethod{Thread: main, Entry: r.cfg.Entry}
	r.state = StateEntryCaptured
	r.mu.Unlock()
	r.logger.DebugContext(ctx, "entry captured", "thread", main.Name())

	r.setState(StateRelaunching)
	if err := r.reenter(ctx, args); err != nil {
		return r.fail(ctx, StateRelaunching, err)
	}

	r.setState(StateDraining)
	if err := r.drain(ctx); err != nil {
		return r.fail(ctx, StateDraining, err)
	}

	r.setState(StateTerminated)
	r.metrics.Launches.WithLabelValues(metrics.OutcomeRelaunched).Inc()
	r.logger.InfoContext(ctx, "application finished, exiting")
	r.exit(0)
	return nil
}

// isolatedLoader returns the isolated loader already in effect for a launch
// from ctx on main, or nil.
func isolatedLoader(ctx context.Context, main *thread.Thread) loader.Loader {
	if l := main.Active(); loader.IsIsolated(l) {
		return l
	}
	if l, ok := loader.FromContext(ctx); ok && loader.IsIsolated(l) {
		return l
	}
	return nil
}

// alreadyIsolated records a launch that found isolation in place. It is
// called with r.mu held and releases it. An empty name means another
// Launch in this process owns the entry.
func (r *Relauncher) alreadyIsolated(ctx context.Context, name string) {
	r.state = StateAlreadyIsolated
	r.mu.Unlock()
	r.metrics.Launches.WithLabelValues(metrics.OutcomeAlreadyIsolated).Inc()
	if name == "" {
		r.logger.DebugContext(ctx, "launch already in progress in this process, nothing to do")
		return
	}
	r.logger.DebugContext(ctx, "already isolated, nothing to do", "loader", name)
}

// remain is the re-entry routine. It runs the captured entry inside a fresh
// isolated loader on the main thread.
func (r *Relauncher) remain(ctx context.Context, args []string) error {
	r.mu.Lock()
	entry := r.entry
	r.mu.Unlock()
	if entry == nil {
		return ErrMissingEntry
	}

	base := entry.Thread.Active()
	paths, err := r.resolvePaths(base)
	if err != nil {
		return err
	}

	iso, err := r.launcher.Isolate(base, paths)
	if err != nil {
		return fmt.Errorf("%w: isolate: %w", ErrIsolatedLaunch, err)
	}
	r.logger.InfoContext(ctx, "relaunching", "loader", iso.Name(), "paths", len(paths))

	return thread.With(entry.Thread, iso, func() error {
		lctx := thread.NewContext(loader.NewContext(ctx, iso), entry.Thread)
		err := r.launcher.Launch(lctx, &launcher.Request{
			Loader: iso,
			Paths:  paths,
			Args:   args,
			Entry:  entry.Entry,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIsolatedLaunch, err)
		}
		return nil
	})
}

// resolvePaths returns agent paths, then the paths of base, then the
// configured extra paths.
func (r *Relauncher) resolvePaths(base loader.Loader) ([]string, error) {
	agents, err := r.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	r.metrics.AgentPaths.Set(float64(len(agents)))

	paths := slices.Clone(agents)
	if base != nil {
		paths = append(paths, base.Paths()...)
	}
	paths = append(paths, r.cfg.ExtraPaths...)
	return paths, nil
}

// drain joins every live non-daemon thread other than main until a full
// scan finds none. Cancellation of ctx does not stop it; only
// Config.DrainTimeout does.
func (r *Relauncher) drain(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if r.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DrainTimeout)
		defer cancel()
	}

	main := r.group.Main()
	for {
		r.metrics.DrainScans.Inc()
		found := false
		for _, t := range r.group.Enumerate() {
			if t == main || t.Daemon() || !t.Alive() {
				continue
			}
			found = true
			if err := r.join(ctx, main, t); err != nil {
				return err
			}
		}
		if !found {
			return nil
		}
	}
}

func (r *Relauncher) join(ctx context.Context, main, t *thread.Thread) error {
	for {
		err := main.Join(ctx, t)
		switch {
		case err == nil:
			r.metrics.DrainJoins.Inc()
			return nil
		case errors.Is(err, thread.ErrInterrupted):
			r.metrics.DrainInterrupts.Inc()
			r.logger.DebugContext(ctx, "join interrupted, retrying", "thread", t.Name())
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: thread %q still running after %s",
				ErrDrainTimeout, t.Name(), r.cfg.DrainTimeout)
		default:
			return err
		}
	}
}

func (r *Relauncher) fail(ctx context.Context, state State, err error) error {
	r.setState(StateFailed)
	r.metrics.Launches.WithLabelValues(metrics.OutcomeFailed).Inc()
	r.logger.ErrorContext(ctx, "relaunch failed", "state", state.String(), "error", err)
	return &Error{State: state, Err: err}
}

// PrepareForEmbeddedTest sets up an isolated loader for a host that already
// owns the process, such as a test harness. Nothing is captured, launched or
// drained, and the state does not change.
func (r *Relauncher) PrepareForEmbeddedTest(ctx context.Context) (loader.Loader, error) {
	r.logger.DebugContext(ctx, "preparing embedded launch")
	paths, err := r.resolvePaths(r.group.Main().Active())
	if err != nil {
		return nil, err
	}
	l, err := r.launcher.LaunchEmbedded(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("%w: embedded: %w", ErrIsolatedLaunch, err)
	}
	r.metrics.Launches.WithLabelValues(metrics.OutcomeEmbedded).Inc()
	return l, nil
}
