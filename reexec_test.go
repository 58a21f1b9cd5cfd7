package relaunch

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhangyunhao116/relaunch/launcher"
)

func TestIsRelaunched_NoMarker(t *testing.T) {
	t.Setenv(launcher.PayloadEnvKey, "")
	os.Unsetenv(launcher.PayloadEnvKey)

	assert.False(t, IsRelaunched())
}
