// Package pathutil provides path helpers shared by the agent resolver and the
// launchers: canonical absolute paths and platform path lists.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned by Canonical when given an empty path.
var ErrEmptyPath = errors.New("pathutil: empty path")

// absFn is filepath.Abs, replaceable in tests to simulate a missing working
// directory.
var absFn = filepath.Abs

// Canonical converts p to a cleaned absolute path. Relative paths are
// resolved against the current working directory. Symlinks are not
// followed, so the result is stable for paths that do not exist yet.
func Canonical(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if ContainsNullByte(p) {
		return "", fmt.Errorf("pathutil: path %q contains a null byte", p)
	}
	abs, err := absFn(p)
	if err != nil {
		return "", fmt.Errorf("pathutil: cannot make %q absolute: %w", p, err)
	}
	return filepath.Clean(abs), nil
}

// SplitList splits a list joined with os.PathListSeparator. Empty elements
// are dropped; order is preserved and duplicates are kept.
func SplitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := filepath.SplitList(s)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(paths []string) string {
	return strings.Join(paths, string(os.PathListSeparator))
}

// Executable returns the resolved path of the running binary, following
// symlinks so a re-executed child starts the same file.
func Executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("pathutil: locate executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		// The binary may have been replaced on disk since start.
		return exe, nil
	}
	return resolved, nil
}

// ContainsNullByte reports whether s contains a null byte, which the kernel
// would silently truncate at.
func ContainsNullByte(s string) bool {
	return strings.IndexByte(s, 0) >= 0
}
