// Package launcher provides the isolated launchers a relauncher hands the
// application to. A launcher builds an isolated loader over a path list and
// runs the application inside it, either on the calling goroutine
// (InProcess) or in a re-executed copy of the binary (Exec).
package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhangyunhao116/relaunch/loader"
)

var (
	// ErrNoEntry indicates a launcher that calls back into the application
	// was given a request without an entry.
	ErrNoEntry = errors.New("launcher: request has no entry")

	// ErrNilRequest indicates Launch was called with a nil request.
	ErrNilRequest = errors.New("launcher: request must not be nil")

	// ErrNamespacesUnavailable indicates namespaces were requested but the
	// kernel does not allow an unprivileged process to create them.
	ErrNamespacesUnavailable = errors.New("launcher: namespaces unavailable")
)

// Entry is the application's real entry routine.
type Entry func(ctx context.Context, args []string) error

// Request describes one isolated launch.
type Request struct {
	// Loader is the isolated loader returned by Isolate.
	Loader loader.Loader

	// Paths is the resolution path list the loader was built from.
	Paths []string

	// Args are the application arguments, passed through unchanged.
	Args []string

	// Entry is the application entry. Launchers that start a fresh process
	// do not call it.
	Entry Entry
}

// Launcher runs an application inside an isolated execution context.
type Launcher interface {
	// Isolate builds the isolated loader for paths. parent is the loader
	// active when the launch was requested.
	Isolate(parent loader.Loader, paths []string) (loader.Loader, error)

	// Launch runs the application and blocks until its entry logic
	// returns.
	Launch(ctx context.Context, req *Request) error

	// LaunchEmbedded prepares an isolated loader inside the current process
	// without running any entry, for hosts such as test harnesses that
	// already own the process.
	LaunchEmbedded(ctx context.Context, paths []string) (loader.Loader, error)
}

// PanicError is returned when an entry panics inside InProcess.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the goroutine stack at the time of the panic.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("launcher: entry panicked: %v", e.Value)
}

// ExitError is returned by Exec when the relaunched process exits with a
// non-zero status.
type ExitError struct {
	// Code is the exit status of the child, or -1 if it was killed by a
	// signal.
	Code int
	// Err is the underlying wait error.
	Err error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("launcher: relaunched process exited with code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }
