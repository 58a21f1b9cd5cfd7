// Package logs builds the structured logger used by the relaunch binaries:
// a text handler on the given writer, fanned out to the systemd journal when
// the process runs as a systemd service.
package logs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Replaceable in tests.
var (
	readCgroup = func() ([]byte, error) { return os.ReadFile("/proc/self/cgroup") }

	newJournalHandler = func() (slog.Handler, error) {
		return slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: toJournalKey,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
	}
)

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing text records at level or above to w. Under
// systemd the terminal handler is dropped in favour of the journal.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	var handlers []slog.Handler

	var terminal slog.Handler
	if !underSystemdService() {
		terminal = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
		handlers = append(handlers, terminal)
	}

	journal, err := newJournalHandler()
	switch {
	case err == nil:
		handlers = append(handlers, journal)
	case terminal != nil:
		record := slog.NewRecord(time.Now(), slog.LevelDebug, "logs: systemd journal unavailable", 0)
		record.Add("err", err)
		if terminal.Enabled(context.Background(), slog.LevelDebug) {
			_ = terminal.Handle(context.Background(), record)
		}
	default:
		// Neither a terminal nor a journal: keep at least stderr.
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

func underSystemdService() bool {
	content, err := readCgroup()
	if err != nil {
		return false
	}
	// cgroup v2: "0::/system.slice/foo.service"
	parts := strings.SplitN(strings.TrimSpace(string(content)), ":", 3)
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service") || strings.HasSuffix(parts[2], ".service")
}

func toJournalKey(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(s))
}
