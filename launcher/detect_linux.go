//go:build linux

package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// User namespaces usable by unprivileged processes appeared in 3.8.
const minUserNSMajor, minUserNSMinor = 3, 8

// Replaced in tests.
var (
	kernelVersionFn = host.KernelVersion
	readMaxUserNS   = func() ([]byte, error) {
		return os.ReadFile("/proc/sys/user/max_user_namespaces")
	}
)

// checkNamespaces reports why the child cannot be started in new
// namespaces, or nil if it can.
func checkNamespaces() error {
	release, err := kernelVersionFn()
	if err != nil {
		return fmt.Errorf("kernel version: %w", err)
	}
	major, minor, err := parseKernelRelease(release)
	if err != nil {
		return err
	}
	if major < minUserNSMajor || (major == minUserNSMajor && minor < minUserNSMinor) {
		return fmt.Errorf("kernel %s predates user namespaces", release)
	}

	data, err := readMaxUserNS()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read max_user_namespaces: %w", err)
	}
	if n, err := strconv.Atoi(string(bytes.TrimSpace(data))); err == nil && n == 0 {
		return errors.New("user namespaces are disabled (max_user_namespaces is 0)")
	}
	return nil
}

// parseKernelRelease extracts major and minor from a release string such as
// "6.8.0-45-generic".
func parseKernelRelease(s string) (major, minor int, err error) {
	if i := strings.IndexAny(s, "-+ "); i != -1 {
		s = s[:i]
	}
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid kernel release %q", s)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid kernel release %q: %w", s, err)
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid kernel release %q: %w", s, err)
	}
	return major, minor, nil
}
