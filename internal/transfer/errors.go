package transfer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/45Drives/studio-share-sub000/internal/models"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("transfer session not found")

// SpawnError means the transport executable could not be launched at all,
// usually because it is not installed. Resolution never fails eagerly, so
// a missing tool surfaces here.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Hint suggests how to make the tool available.
func (e *SpawnError) Hint() string {
	name := strings.TrimSuffix(strings.ToLower(filepath.Base(strings.ReplaceAll(e.Executable, `\`, "/"))), ".exe")
	switch name {
	case "rsync":
		return "install rsync (macOS: brew install rsync; Linux: your package manager; Windows: WSL or Git for Windows)"
	case "wsl":
		return "install rsync inside WSL (sudo apt install rsync) or choose another transport"
	case "scp", "ssh":
		return "install the OpenSSH client (Windows: Settings > Optional features > OpenSSH Client)"
	}
	return "check that " + e.Executable + " is installed and on PATH"
}

// TransportError is a non-zero exit of the transport. Stderr carries the
// tool's own last words.
type TransportError struct {
	Transport models.TransportKind
	ExitCode  int
	Stderr    string
}

func (e *TransportError) Error() string {
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return s
	}
	return fmt.Sprintf("%s exited with code %d", e.Transport, e.ExitCode)
}

// ConnectionError is an SSH dial or authentication failure of the SFTP
// transport.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError rejects a request before a session is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
