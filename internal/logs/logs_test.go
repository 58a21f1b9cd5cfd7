package logs

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubEnv(t *testing.T, cgroup string, journalErr error) {
	t.Helper()
	origCgroup, origJournal := readCgroup, newJournalHandler
	t.Cleanup(func() {
		readCgroup = origCgroup
		newJournalHandler = origJournal
	})
	readCgroup = func() ([]byte, error) { return []byte(cgroup), nil }
	newJournalHandler = func() (slog.Handler, error) {
		if journalErr != nil {
			return nil, journalErr
		}
		return slog.NewTextHandler(&bytes.Buffer{}, nil), nil
	}
}

func TestNew_Terminal(t *testing.T) {
	stubEnv(t, "0::/user.slice/session-1.scope\n", errors.New("no journal"))

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Info("relaunch started", "pid", 42)
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "relaunch started")
	assert.Contains(t, out, "pid=42")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "journal unavailable")
}

func TestNew_DebugReportsMissingJournal(t *testing.T) {
	stubEnv(t, "", errors.New("no journal"))

	var buf bytes.Buffer
	New(&buf, slog.LevelDebug)
	assert.Contains(t, buf.String(), "journal unavailable")
}

func TestNew_SystemdServiceSkipsTerminal(t *testing.T) {
	stubEnv(t, "0::/system.slice/app.service\n", nil)

	var buf bytes.Buffer
	New(&buf, slog.LevelInfo).Info("to journal only")
	assert.Empty(t, buf.String())
}

func TestUnderSystemdService(t *testing.T) {
	tests := []struct {
		cgroup string
		want   bool
	}{
		{"0::/system.slice/app.service\n", true},
		{"0::/system.slice/app.service/sub\n", true},
		{"0::/user.slice/user-1000.slice/session-2.scope\n", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		stubEnv(t, tt.cgroup, nil)
		assert.Equal(t, tt.want, underSystemdService(), tt.cgroup)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestToJournalKey(t *testing.T) {
	assert.Equal(t, "LAUNCH_ID", toJournalKey("launch_id"))
	assert.Equal(t, "A_B_C", toJournalKey("a.b-c"))
}
