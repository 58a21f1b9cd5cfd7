// Package envutil edits KEY=VALUE environment slices for child processes
// without touching the parent's environment.
package envutil

import (
	"strings"
)

// key returns the portion of a KEY=VALUE entry before the first '='.
func key(entry string) string {
	if idx := strings.IndexByte(entry, '='); idx >= 0 {
		return entry[:idx]
	}
	return entry
}

// SetEnv sets or replaces key in env and returns the resulting slice.
// An existing entry is updated in place; otherwise one is appended.
func SetEnv(env []string, k, value string) []string {
	for i, e := range env {
		if key(e) == k {
			env[i] = k + "=" + value
			return env
		}
	}
	return append(env, k+"="+value)
}

// GetEnv looks key up in env. Entries without '=' never match.
func GetEnv(env []string, k string) (string, bool) {
	for _, e := range env {
		if ek, v, ok := strings.Cut(e, "="); ok && ek == k {
			return v, true
		}
	}
	return "", false
}

// RemoveEnvPrefix returns a copy of env without the variables whose key
// starts with prefix. Used to drop stale internal markers before a re-exec.
func RemoveEnvPrefix(env []string, prefix string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(key(e), prefix) {
			result = append(result, e)
		}
	}
	return result
}

// MergeEnv returns base with the entries of additional applied on top.
// Overridden keys keep their position in base; new keys are appended in the
// order they first appear in additional.
func MergeEnv(base, additional []string) []string {
	overrides := make(map[string]string, len(additional))
	order := make([]string, 0, len(additional))
	for _, e := range additional {
		k := key(e)
		if _, exists := overrides[k]; !exists {
			order = append(order, k)
		}
		overrides[k] = e
	}

	replaced := make(map[string]bool, len(overrides))
	result := make([]string, 0, len(base)+len(additional))
	for _, e := range base {
		k := key(e)
		if override, ok := overrides[k]; ok {
			result = append(result, override)
			replaced[k] = true
			continue
		}
		result = append(result, e)
	}
	for _, k := range order {
		if !replaced[k] {
			result = append(result, overrides[k])
		}
	}
	return result
}
