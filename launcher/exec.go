package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/zhangyunhao116/relaunch/internal/envutil"
	"github.com/zhangyunhao116/relaunch/internal/pathutil"
	"github.com/zhangyunhao116/relaunch/loader"
)

const (
	// PayloadEnvKey names the file descriptor a re-executed child reads its
	// Payload from.
	PayloadEnvKey = "_RELAUNCH_PAYLOAD"

	// internalEnvPrefix covers every variable the launcher sets for its own
	// use; they are stripped before a re-exec.
	internalEnvPrefix = "_RELAUNCH_"

	// payloadFD is the descriptor of the first entry of exec.Cmd.ExtraFiles.
	payloadFD = 3
)

// ExecConfig configures an Exec launcher.
type ExecConfig struct {
	// Namespaces runs the child in new user, mount, PID, IPC and UTS
	// namespaces. Linux only; ignored elsewhere.
	Namespaces bool

	// Env holds KEY=VALUE entries added to the child's environment.
	Env []string

	// Stdin, Stdout and Stderr default to the parent's.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// executableFn locates the binary to re-execute. Replaced in tests.
var executableFn = pathutil.Executable

// Exec re-executes the running binary as the isolated application. The child
// receives the launch Payload through an inherited pipe; its own relauncher
// sees the inherited launch and does not relaunch again.
type Exec struct {
	cfg    ExecConfig
	logger *slog.Logger
}

// NewExec returns an Exec launcher. cfg may be nil.
func NewExec(cfg *ExecConfig) *Exec {
	var c ExecConfig
	if cfg != nil {
		c = *cfg
		c.Env = append([]string(nil), cfg.Env...)
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{cfg: c, logger: logger}
}

// Isolate implements Launcher.
func (l *Exec) Isolate(parent loader.Loader, paths []string) (loader.Loader, error) {
	return loader.NewIsolated("", parent, paths), nil
}

// Launch implements Launcher. It blocks until the child exits. req.Entry is
// not called: the child runs the binary's main from the start.
func (l *Exec) Launch(ctx context.Context, req *Request) error {
	if req == nil {
		return ErrNilRequest
	}
	if l.cfg.Namespaces {
		if err := checkNamespaces(); err != nil {
			return fmt.Errorf("%w: %w", ErrNamespacesUnavailable, err)
		}
	}
	exe, err := executableFn()
	if err != nil {
		return err
	}

	payload := &Payload{Paths: req.Paths, Args: req.Args}
	if iso, ok := req.Loader.(*loader.Isolated); ok {
		payload.LaunchID = iso.ID()
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("launcher: encode payload: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("launcher: payload pipe: %w", err)
	}
	defer func() { _ = w.Close() }()

	cmd := exec.CommandContext(ctx, exe, req.Args...)
	cmd.Env = l.childEnv(os.Environ(), req.Paths)
	cmd.ExtraFiles = []*os.File{r}
	cmd.Stdin = l.cfg.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = l.cfg.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = l.cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	setupProcessGroup(cmd, l.logger, payload.LaunchID)
	configureIsolation(cmd, l.cfg.Namespaces)

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		return fmt.Errorf("launcher: start %s: %w", exe, err)
	}
	_ = r.Close()
	l.logger.Info("launcher: relaunched process started",
		"pid", cmd.Process.Pid, "launch_id", payload.LaunchID, "namespaces", l.cfg.Namespaces)

	// Write concurrently with Wait so a child that never reads cannot
	// block the parent on a full pipe.
	writeErr := make(chan error, 1)
	go func() {
		_, err := w.Write(data)
		_ = w.Close()
		writeErr <- err
	}()

	waitErr := cmd.Wait()
	if err := <-writeErr; err != nil && waitErr == nil {
		return fmt.Errorf("launcher: send payload: %w", err)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Err: waitErr}
		}
		return fmt.Errorf("launcher: wait: %w", waitErr)
	}
	l.logger.Info("launcher: relaunched process exited", "launch_id", payload.LaunchID)
	return nil
}

// LaunchEmbedded implements Launcher. No child is started.
func (l *Exec) LaunchEmbedded(_ context.Context, paths []string) (loader.Loader, error) {
	return loader.NewEmbedded(nil, paths), nil
}

func (l *Exec) childEnv(base []string, paths []string) []string {
	env := envutil.RemoveEnvPrefix(base, internalEnvPrefix)
	env = envutil.MergeEnv(env, l.cfg.Env)
	env = envutil.SetEnv(env, loader.PathEnvKey, pathutil.JoinList(paths))
	return envutil.SetEnv(env, PayloadEnvKey, strconv.Itoa(payloadFD))
}

var (
	inheritOnce sync.Once
	inherited   *Payload
	inheritErr  error
)

// Inherited returns the Payload this process was re-executed with. The
// marker variable is cleared on first call so processes started by the
// application do not inherit it. ok is false when the process was not
// started by Exec.
func Inherited() (p *Payload, ok bool, err error) {
	inheritOnce.Do(func() {
		fdStr, set := os.LookupEnv(PayloadEnvKey)
		if !set {
			return
		}
		_ = os.Unsetenv(PayloadEnvKey)
		inherited, inheritErr = readPayload(fdStr)
	})
	return inherited, inherited != nil, inheritErr
}

// Inherit adapts Inherited to loader.InheritFunc.
func Inherit() (id string, paths []string, ok bool, err error) {
	p, ok, err := Inherited()
	if err != nil || !ok {
		return "", nil, false, err
	}
	return p.LaunchID, p.Paths, true, nil
}

func readPayload(fdStr string) (*Payload, error) {
	fd, err := strconv.Atoi(fdStr)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("launcher: invalid payload fd %q", fdStr)
	}
	f := os.NewFile(uintptr(fd), "relaunch-payload")
	if f == nil {
		return nil, fmt.Errorf("launcher: cannot open payload fd %d", fd)
	}
	defer func() { _ = f.Close() }()

	p, err := decodePayload(f)
	if err != nil {
		return nil, fmt.Errorf("launcher: decode payload: %w", err)
	}
	return p, nil
}
