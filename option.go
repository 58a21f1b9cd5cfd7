package relaunch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhangyunhao116/relaunch/agent"
	"github.com/zhangyunhao116/relaunch/launcher"
	"github.com/zhangyunhao116/relaunch/loader"
	"github.com/zhangyunhao116/relaunch/thread"
)

// Option configures the collaborators of a Relauncher.
type Option func(*options)

type options struct {
	launcher   launcher.Launcher
	args       agent.ArgsProvider
	provider   loader.Provider
	group      *thread.Group
	exit       func(code int)
	registerer prometheus.Registerer
}

// WithLauncher replaces the launcher chosen from Config.Isolation.
func WithLauncher(l launcher.Launcher) Option {
	return func(o *options) {
		o.launcher = l
	}
}

// WithArgsProvider replaces the source of launch arguments scanned for
// agent attachments. The default reads the process command line.
func WithArgsProvider(p agent.ArgsProvider) Option {
	return func(o *options) {
		o.args = p
	}
}

// WithLoaderProvider replaces the provider of the system loader. The default
// reads the environment and any inherited re-exec payload.
func WithLoaderProvider(p loader.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithGroup sets the thread group the application spawns its threads in.
// The group's main thread is the one that calls Launch.
func WithGroup(g *thread.Group) Option {
	return func(o *options) {
		o.group = g
	}
}

// WithExitFunc replaces os.Exit as the final step of Launch.
func WithExitFunc(exit func(code int)) Option {
	return func(o *options) {
		o.exit = exit
	}
}

// WithRegisterer registers the relauncher's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}
