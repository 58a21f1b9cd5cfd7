package launcher

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/zhangyunhao116/relaunch/loader"
)

// InProcess runs the entry on the calling goroutine with the isolated loader
// carried by the context.
type InProcess struct {
	logger *slog.Logger
}

// NewInProcess returns an InProcess launcher. A nil logger means
// slog.Default().
func NewInProcess(logger *slog.Logger) *InProcess {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcess{logger: logger}
}

// Isolate implements Launcher.
func (l *InProcess) Isolate(parent loader.Loader, paths []string) (loader.Loader, error) {
	return loader.NewIsolated("", parent, paths), nil
}

// Launch implements Launcher. A panic in the entry is returned as a
// *PanicError.
func (l *InProcess) Launch(ctx context.Context, req *Request) (err error) {
	if req == nil {
		return ErrNilRequest
	}
	if req.Entry == nil {
		return ErrNoEntry
	}
	if req.Loader != nil {
		ctx = loader.NewContext(ctx, req.Loader)
	}

	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()

	l.logger.Debug("launcher: running entry in process", "paths", len(req.Paths), "args", len(req.Args))
	return req.Entry(ctx, req.Args)
}

// LaunchEmbedded implements Launcher.
func (l *InProcess) LaunchEmbedded(_ context.Context, paths []string) (loader.Loader, error) {
	return loader.NewEmbedded(nil, paths), nil
}
