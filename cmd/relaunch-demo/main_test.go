package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangyunhao116/relaunch"
	"github.com/zhangyunhao116/relaunch/loader"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	v := viper.New()
	require.NoError(t, v.BindPFlags(fs))
	return v
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := buildConfig(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, relaunch.IsolationInProcess, cfg.Isolation)
	assert.Zero(t, cfg.DrainTimeout)
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaunch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("isolation: exec\ndrain_timeout: 1s\nextra_paths: [/opt/x]\n"), 0o600))

	cfg, err := buildConfig(newViper(t, "--config", path, "--drain-timeout", "3s"))
	require.NoError(t, err)
	assert.Equal(t, relaunch.IsolationExec, cfg.Isolation)
	assert.Equal(t, 3*time.Second, cfg.DrainTimeout)
	assert.Equal(t, []string{"/opt/x"}, cfg.ExtraPaths)
}

func TestBuildConfig_Invalid(t *testing.T) {
	_, err := buildConfig(newViper(t, "--isolation", "vm"))
	assert.ErrorIs(t, err, relaunch.ErrConfigInvalid)
}

func TestAgentArgs(t *testing.T) {
	args := agentArgs(relaunch.AgentConfig{Marker: "-javaagent:"}, []string{"/a/x.jar", "/a/y.jar"})
	assert.Equal(t, []string{"-javaagent:/a/x.jar", "-javaagent:/a/y.jar"}, []string(args))
}

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd(&app{argv: []string{}})
	for _, name := range []string{"config", "isolation", "namespaces", "agent", "workers", "work", "drain-timeout", "log-level", "metrics-addr"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of worker
// threads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runDemo(t *testing.T, argv []string, opts ...relaunch.Option) (string, error) {
	t.Helper()
	var out syncBuffer
	a := &app{
		argv: argv,
		opts: opts,
		newLogger: func(_ io.Writer, level slog.Leveler) *slog.Logger {
			return slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: level}))
		},
	}
	err := newRootCmd(a).ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_InProcess(t *testing.T) {
	argv := []string{"--workers", "2", "--work", "20ms"}
	var exits []int

	start := time.Now()
	logs, err := runDemo(t, argv, relaunch.WithExitFunc(func(code int) { exits = append(exits, code) }))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "second worker runs twice as long")
	assert.Equal(t, []int{0}, exits)
	assert.Contains(t, logs, `args="[--workers 2 --work 20ms]"`)
	assert.Equal(t, 2, strings.Count(logs, "worker finished"))
}

func TestRun_AlreadyIsolatedRunsEntryItself(t *testing.T) {
	argv := []string{"--workers", "1", "--work", "10ms"}
	var exits []int

	logs, err := runDemo(t, argv,
		relaunch.WithLoaderProvider(loader.Static{Loader: loader.NewIsolated("child", nil, []string{"/opt/a"})}),
		relaunch.WithExitFunc(func(code int) { exits = append(exits, code) }),
	)
	require.NoError(t, err)

	assert.Empty(t, exits)
	assert.Contains(t, logs, "loader=isolated-child")
	assert.Contains(t, logs, `args="[--workers 1 --work 10ms]"`, "same arguments as in process")
	assert.Equal(t, 1, strings.Count(logs, "worker finished"))
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := runDemo(t, []string{"--isolation", "vm"})
	assert.ErrorIs(t, err, relaunch.ErrConfigInvalid)
}
