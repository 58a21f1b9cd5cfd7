// Package loader models execution contexts: the capability a thread of
// control uses to resolve code. A Base loader is the process-wide context the
// binary starts with; an Isolated loader is built by a launcher and resolves
// code independently of the base one.
package loader

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"

	"github.com/zhangyunhao116/relaunch/internal/envutil"
	"github.com/zhangyunhao116/relaunch/internal/pathutil"
)

// PathEnvKey is the environment variable holding the base resolution path
// list, joined with os.PathListSeparator.
const PathEnvKey = "RELAUNCH_PATH"

// Loader is an execution context.
type Loader interface {
	// Name identifies the loader in logs.
	Name() string

	// Paths returns the ordered resolution path list. Callers receive a copy.
	Paths() []string
}

// Base is a plain, non-isolated loader.
type Base struct {
	name  string
	paths []string
}

// NewBase returns a Base loader over a copy of paths.
func NewBase(name string, paths []string) *Base {
	return &Base{name: name, paths: slices.Clone(paths)}
}

// Name implements Loader.
func (b *Base) Name() string { return b.name }

// Paths implements Loader.
func (b *Base) Paths() []string { return slices.Clone(b.paths) }

// Isolated is an execution context created for a relaunched application.
type Isolated struct {
	id       string
	parent   Loader
	paths    []string
	embedded bool
}

// NewIsolated returns an isolated loader over a copy of paths. An empty id
// is replaced by a random one.
func NewIsolated(id string, parent Loader, paths []string) *Isolated {
	if id == "" {
		id = uuid.NewString()
	}
	return &Isolated{id: id, parent: parent, paths: slices.Clone(paths)}
}

// NewEmbedded returns an isolated loader for use inside a test harness that
// already owns the process.
func NewEmbedded(parent Loader, paths []string) *Isolated {
	l := NewIsolated("", parent, paths)
	l.embedded = true
	return l
}

// ID returns the launch identifier of the loader.
func (l *Isolated) ID() string { return l.id }

// Parent returns the loader that was active when l was created. It is nil
// for loaders rebuilt from a re-exec payload.
func (l *Isolated) Parent() Loader { return l.parent }

// Embedded reports whether l was created by an in-process embedded launch.
func (l *Isolated) Embedded() bool { return l.embedded }

// Name implements Loader.
func (l *Isolated) Name() string { return "isolated-" + l.id }

// Paths implements Loader.
func (l *Isolated) Paths() []string { return slices.Clone(l.paths) }

// String returns the loader name.
func (l *Isolated) String() string { return l.Name() }

// IsIsolated reports whether l is an isolated execution context. The check
// is by concrete type, so wrappers are not considered isolated.
func IsIsolated(l Loader) bool {
	_, ok := l.(*Isolated)
	return ok
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l Loader) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the loader carried by ctx, if any.
func FromContext(ctx context.Context) (Loader, bool) {
	l, ok := ctx.Value(ctxKey{}).(Loader)
	return l, ok && l != nil
}

// Provider supplies the process-wide base loader.
type Provider interface {
	System() (Loader, error)
}

// InheritFunc reports the isolated launch this process was started for,
// if any.
type InheritFunc func() (id string, paths []string, ok bool, err error)

// EnvProvider builds the system loader from the environment. When Inherit
// reports a launch, the system loader is the isolated loader of that launch.
type EnvProvider struct {
	// Environ returns the environment. Defaults to os.Environ.
	Environ func() []string

	// Inherit detects a re-exec launch. Nil means never inherited.
	Inherit InheritFunc
}

// System implements Provider.
func (p *EnvProvider) System() (Loader, error) {
	if p.Inherit != nil {
		id, paths, ok, err := p.Inherit()
		if err != nil {
			return nil, fmt.Errorf("loader: inherit launch: %w", err)
		}
		if ok {
			return NewIsolated(id, nil, paths), nil
		}
	}

	environ := p.Environ
	if environ == nil {
		environ = os.Environ
	}
	var paths []string
	if v, ok := envutil.GetEnv(environ(), PathEnvKey); ok {
		paths = pathutil.SplitList(v)
	}
	if exe, err := pathutil.Executable(); err == nil {
		paths = append(paths, exe)
	}
	return NewBase("system", paths), nil
}

// Static is a Provider returning a fixed loader.
type Static struct {
	Loader Loader
}

// System implements Provider.
func (s Static) System() (Loader, error) { return s.Loader, nil }
