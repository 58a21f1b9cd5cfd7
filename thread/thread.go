// Package thread gives goroutines an identity the relauncher can reason
// about: a name, a background (daemon) flag, a completion signal, an
// interrupt channel, and the execution context currently active on it.
//
// Go has no goroutine-local storage, so the active loader lives on the
// *Thread value and is handed to the goroutine's function through its
// context. Threads are created through a Group, which is what the drain loop
// enumerates.
package thread

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/relaunch/loader"
)

var (
	// ErrInterrupted is returned by Join when the joining thread is
	// interrupted before the target ends.
	ErrInterrupted = errors.New("thread: interrupted")

	// ErrJoinSelf is returned when a thread tries to join itself.
	ErrJoinSelf = errors.New("thread: cannot join self")
)

// Thread is a handle on one thread of control.
type Thread struct {
	id     uint64
	name   string
	daemon bool

	active    atomic.Pointer[slot]
	done      chan struct{}
	interrupt chan struct{}
}

// slot boxes a Loader so an atomic.Pointer can hold any implementation,
// including nil.
type slot struct {
	l loader.Loader
}

func newThread(id uint64, name string, daemon bool) *Thread {
	return &Thread{
		id:        id,
		name:      name,
		daemon:    daemon,
		done:      make(chan struct{}),
		interrupt: make(chan struct{}, 1),
	}
}

// ID returns the identifier of t, unique within its group.
func (t *Thread) ID() uint64 { return t.id }

// Name returns the name t was spawned with.
func (t *Thread) Name() string { return t.name }

// Daemon reports whether t is a background thread that never holds the
// process open.
func (t *Thread) Daemon() bool { return t.daemon }

// Done returns a channel closed when t's function returns.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Alive reports whether t is still running.
func (t *Thread) Alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Active returns the loader currently associated with t, or nil.
func (t *Thread) Active() loader.Loader {
	if s := t.active.Load(); s != nil {
		return s.l
	}
	return nil
}

// Swap associates next with t and returns the loader that was associated
// before, which may be nil. next is not validated. Every Swap must be paired
// with a Restore of the returned value.
func (t *Thread) Swap(next loader.Loader) loader.Loader {
	if prev := t.active.Swap(&slot{l: next}); prev != nil {
		return prev.l
	}
	return nil
}

// Restore re-associates prev with t, overwriting whatever is active.
func (t *Thread) Restore(prev loader.Loader) {
	t.active.Store(&slot{l: prev})
}

// With makes l the active loader of t while fn runs. The previous loader is
// restored on every exit path, including a panic in fn.
func With(t *Thread, l loader.Loader, fn func() error) error {
	prev := t.Swap(l)
	defer t.Restore(prev)
	return fn()
}

// Interrupt wakes t if it is blocked in Join. An interrupt sent while t is
// not joining stays pending until the next Join.
func (t *Thread) Interrupt() {
	select {
	case t.interrupt <- struct{}{}:
	default:
	}
}

// Join blocks until target ends. It returns ErrInterrupted if t is
// interrupted first and ctx.Err() if ctx is done first.
func (t *Thread) Join(ctx context.Context, target *Thread) error {
	if target == t {
		return ErrJoinSelf
	}
	// A finished target wins over a pending interrupt.
	select {
	case <-target.done:
		return nil
	default:
	}
	select {
	case <-target.done:
		return nil
	case <-t.interrupt:
		return ErrInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

type threadKey struct{}

// NewContext returns a copy of ctx carrying t.
func NewContext(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}

// Current returns the thread carried by ctx.
func Current(ctx context.Context) (*Thread, bool) {
	t, ok := ctx.Value(threadKey{}).(*Thread)
	return t, ok
}

// Group tracks the threads spawned for one application. The main thread is
// created with the group and represents the goroutine that owns it.
type Group struct {
	name string
	main *Thread

	mu      sync.Mutex
	nextID  uint64
	threads map[uint64]*Thread
	running int           // live non-daemon threads, main excluded
	idle    chan struct{} // closed when running drops to zero
}

// NewGroup returns an empty group with a fresh main thread.
func NewGroup(name string) *Group {
	g := &Group{
		name:    name,
		threads: make(map[uint64]*Thread),
		idle:    make(chan struct{}),
	}
	g.main = newThread(0, "main", false)
	g.threads[0] = g.main
	g.nextID = 1
	return g
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Main returns the main thread.
func (g *Group) Main() *Thread { return g.main }

// SpawnOption configures Go.
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	daemon    bool
	loader    loader.Loader
	hasLoader bool
}

// Daemon marks the spawned thread as a background thread.
func Daemon() SpawnOption {
	return func(o *spawnOptions) { o.daemon = true }
}

// WithLoader sets the initial active loader of the spawned thread.
func WithLoader(l loader.Loader) SpawnOption {
	return func(o *spawnOptions) {
		o.loader = l
		o.hasLoader = true
	}
}

// Go starts fn on a new goroutine registered in g. Unless WithLoader is
// given, the new thread inherits the loader carried by ctx, falling back to
// the main thread's active loader. fn receives a context carrying both its
// thread and its loader.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context), opts ...SpawnOption) *Thread {
	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hasLoader {
		if l, ok := loader.FromContext(ctx); ok {
			o.loader = l
		} else {
			o.loader = g.main.Active()
		}
	}

	g.mu.Lock()
	t := newThread(g.nextID, name, o.daemon)
	t.Restore(o.loader)
	g.nextID++
	g.threads[t.id] = t
	if !t.daemon {
		g.running++
	}
	g.mu.Unlock()

	ctx = NewContext(ctx, t)
	if o.loader != nil {
		ctx = loader.NewContext(ctx, o.loader)
	}
	go func() {
		defer g.exit(t)
		fn(ctx)
	}()
	return t
}

func (g *Group) exit(t *Thread) {
	g.mu.Lock()
	delete(g.threads, t.id)
	if !t.daemon {
		g.running--
		if g.running == 0 {
			close(g.idle)
			g.idle = make(chan struct{})
		}
	}
	g.mu.Unlock()
	close(t.done)
}

// Enumerate returns a snapshot of the live threads of g, main included,
// ordered by ID.
func (g *Group) Enumerate() []*Thread {
	g.mu.Lock()
	out := make([]*Thread, 0, len(g.threads))
	for _, t := range g.threads {
		out = append(out, t)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ActiveCount returns the number of live threads, main included.
func (g *Group) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.threads)
}

// Wait blocks until no non-daemon thread other than main is running, or ctx
// is done. Threads spawned while Wait is blocked are waited for as well.
func (g *Group) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.running == 0 {
			g.mu.Unlock()
			return nil
		}
		idle := g.idle
		g.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
