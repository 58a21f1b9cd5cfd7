package relaunch

import "github.com/zhangyunhao116/relaunch/launcher"

// IsRelaunched reports whether the current process was re-executed by an
// exec launcher. It consumes the inherited payload marker on first call, so
// child processes started afterwards do not see it.
//
// Relauncher.New consults the same payload; calling IsRelaunched before or
// after New gives the same answer.
func IsRelaunched() bool {
	_, ok, err := launcher.Inherited()
	return ok && err == nil
}
