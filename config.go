package relaunch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhangyunhao116/relaunch/agent"
	"github.com/zhangyunhao116/relaunch/launcher"
)

// IsolationMode selects the launcher used when none is injected.
type IsolationMode string

const (
	// IsolationInProcess runs the entry on the calling goroutine with an
	// isolated loader.
	IsolationInProcess IsolationMode = "in-process"

	// IsolationExec re-executes the binary as the isolated application.
	IsolationExec IsolationMode = "exec"
)

// AgentConfig describes the agent attachment argument syntax.
type AgentConfig struct {
	// Marker is the attachment prefix. Defaults to agent.DefaultMarker.
	Marker string `yaml:"marker"`

	// Separator ends the path segment. Defaults to agent.DefaultSeparator.
	Separator string `yaml:"separator"`
}

// Config holds the configuration of a Relauncher.
type Config struct {
	// Name names the thread group of the application.
	Name string `yaml:"name"`

	// Isolation selects the default launcher.
	Isolation IsolationMode `yaml:"isolation"`

	// Agent describes agent attachment arguments.
	Agent AgentConfig `yaml:"agent"`

	// ExtraPaths are appended to the isolated path list after the agent and
	// system paths.
	ExtraPaths []string `yaml:"extra_paths"`

	// Namespaces starts the re-executed child in new Linux namespaces.
	// Only used with IsolationExec.
	Namespaces bool `yaml:"namespaces"`

	// Env holds KEY=VALUE entries added to a re-executed child's
	// environment. Only used with IsolationExec.
	Env []string `yaml:"env"`

	// DrainTimeout bounds the wait for non-daemon threads. Zero waits
	// forever.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// Logger is the structured logger for protocol transitions.
	// If nil, slog.Default() is used.
	Logger *slog.Logger `yaml:"-"`

	// Entry is the application's real entry routine. It must be set
	// before Launch.
	Entry launcher.Entry `yaml:"-"`
}

// DefaultConfig returns a Config that relaunches in process and recognizes
// "-javaagent:" attachments.
func DefaultConfig() *Config {
	return &Config{
		Name:      "main",
		Isolation: IsolationInProcess,
		Agent: AgentConfig{
			Marker:    agent.DefaultMarker,
			Separator: agent.DefaultSeparator,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Isolation {
	case IsolationInProcess, IsolationExec, "":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown isolation mode %q", ErrConfigInvalid, c.Isolation))
	}
	if strings.ContainsAny(c.Agent.Marker, " \t\n") {
		errs = append(errs, fmt.Errorf("%w: agent marker %q contains whitespace", ErrConfigInvalid, c.Agent.Marker))
	}
	if c.Agent.Separator != "" && strings.Contains(c.Agent.Marker, c.Agent.Separator) {
		errs = append(errs, fmt.Errorf("%w: agent marker %q contains separator %q",
			ErrConfigInvalid, c.Agent.Marker, c.Agent.Separator))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: drain timeout must not be negative", ErrConfigInvalid))
	}
	for i, e := range c.Env {
		if k, _, ok := strings.Cut(e, "="); !ok || k == "" {
			errs = append(errs, fmt.Errorf("%w: Env[%d] %q is not KEY=VALUE", ErrConfigInvalid, i, e))
		}
	}
	for i, p := range c.ExtraPaths {
		if p == "" {
			errs = append(errs, fmt.Errorf("%w: ExtraPaths[%d] is empty", ErrConfigInvalid, i))
		}
	}

	return errors.Join(errs...)
}

// LoadConfig reads a YAML configuration file. Fields absent from the file
// keep their DefaultConfig values; unknown fields are an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relaunch: read config: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig is LoadConfig over a reader.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) clone() Config {
	cpy := *c
	cpy.ExtraPaths = append([]string(nil), c.ExtraPaths...)
	cpy.Env = append([]string(nil), c.Env...)
	return cpy
}
