// Package pathutil provides local path resolution and the path translations
// needed to hand Windows paths to WSL, MSYS and remote POSIX tools.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath converts a user supplied path into an absolute one.
// A leading ~ expands to the home directory. Symlinks are resolved in the
// existing portion of the path; a missing tail is appended unchanged.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}

	head, tail := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(head); err == nil {
			return filepath.Join(resolved, tail), nil
		}
		up := filepath.Dir(head)
		if up == head {
			return abs, nil
		}
		tail = filepath.Join(filepath.Base(head), tail)
		head = up
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return home + path[1:], nil
}

// DefaultKnownHostsPath returns <home>/.ssh/known_hosts, preferring HOME and
// then USERPROFILE from getenv. It returns "" when neither is set.
func DefaultKnownHostsPath(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	home := getenv("HOME")
	if home == "" {
		home = getenv("USERPROFILE")
	}
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}
