// Package agent recovers the filesystem locations of agent modules attached
// at launch time, so they can be put on an isolated loader's path list.
//
// An attachment argument has the form
//
//	<marker><path>[<separator><options>]
//
// for example "-javaagent:/opt/agent.jar=verbose". Only the path segment is
// significant.
package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/zhangyunhao116/relaunch/internal/pathutil"
)

const (
	// DefaultMarker is the prefix recognized as an agent attachment.
	DefaultMarker = "-javaagent:"

	// DefaultSeparator splits the agent path from its options.
	DefaultSeparator = "="
)

// ErrMalformedArgument indicates an attachment argument without a usable
// path segment.
var ErrMalformedArgument = errors.New("agent: malformed attachment argument")

// PathError reports the attachment argument that could not be resolved.
type PathError struct {
	// Arg is the raw launch argument.
	Arg string
	// Err is the underlying path conversion fault.
	Err error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("agent: resolve %q: %v", e.Arg, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// ArgsProvider supplies the launch arguments of the process.
type ArgsProvider interface {
	Args() ([]string, error)
}

// StaticArgs is an ArgsProvider over a fixed list.
type StaticArgs []string

// Args implements ArgsProvider.
func (s StaticArgs) Args() ([]string, error) { return s, nil }

// ProcessArgs reads the command line of a running process from the
// operating system.
type ProcessArgs struct {
	// PID selects the process. Zero means the current process.
	PID int32
}

// Args implements ArgsProvider.
func (p ProcessArgs) Args() ([]string, error) {
	pid := p.PID
	if pid == 0 {
		pid = int32(os.Getpid())
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("agent: inspect process %d: %w", pid, err)
	}
	args, err := proc.CmdlineSlice()
	if err != nil {
		return nil, fmt.Errorf("agent: read command line of %d: %w", pid, err)
	}
	return args, nil
}

// Resolver finds agent paths in launch arguments.
type Resolver struct {
	// Marker is the attachment prefix. Defaults to DefaultMarker.
	Marker string

	// Separator ends the path segment. Defaults to DefaultSeparator.
	Separator string

	// Args supplies the launch arguments. Defaults to ProcessArgs{}.
	Args ArgsProvider
}

// Resolve returns the canonical absolute path of every attached agent, in
// argument order. Duplicates are kept. When no argument matches, the result
// is empty and err is nil. A single malformed argument fails the whole call
// and no paths are returned.
func (r *Resolver) Resolve() ([]string, error) {
	provider := r.Args
	if provider == nil {
		provider = ProcessArgs{}
	}
	args, err := provider.Args()
	if err != nil {
		return nil, err
	}
	return r.ResolveArgs(args)
}

// ResolveArgs is Resolve over an explicit argument list.
func (r *Resolver) ResolveArgs(args []string) ([]string, error) {
	marker := r.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	sep := r.Separator
	if sep == "" {
		sep = DefaultSeparator
	}

	paths := []string{}
	for _, arg := range args {
		rest, ok := strings.CutPrefix(arg, marker)
		if !ok {
			continue
		}
		segment, _, _ := strings.Cut(rest, sep)
		if segment == "" {
			return nil, &PathError{Arg: arg, Err: ErrMalformedArgument}
		}
		p, err := pathutil.Canonical(segment)
		if err != nil {
			return nil, &PathError{Arg: arg, Err: err}
		}
		paths = append(paths, p)
	}
	return paths, nil
}
