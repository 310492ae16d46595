// Package models defines the transfer request and transport types shared
// by the resolver, command builder and transfer sessions.
package models

import (
	"os"
	"path"
	"strings"
	"time"
)

// DefaultSSHPort is used when a request leaves Port unset.
const DefaultSSHPort = 22

// TransferRequest describes one transfer intent from the orchestrating layer.
// It is treated as immutable once handed to a session.
type TransferRequest struct {
	ID string `json:"id"`

	// Source is an absolute local path to a file or a directory.
	Source string `json:"source"`

	DestinationHost string `json:"destinationHost"`
	DestinationUser string `json:"destinationUser"`
	// DestinationDir is always a remote directory, never a file path.
	DestinationDir string `json:"destinationDir"`

	Port           int    `json:"port,omitempty"`
	IdentityPath   string `json:"identityPath,omitempty"`
	KnownHostsPath string `json:"knownHostsPath,omitempty"`

	// BandwidthLimitKbps is a KB/s throttle; zero means unlimited.
	BandwidthLimitKbps int `json:"bandwidthLimitKbps,omitempty"`

	// ExtraFlags are passed through verbatim when ExtraFlagsKind matches
	// the chosen transport. An empty ExtraFlagsKind means rsync.
	ExtraFlags     []string      `json:"extraFlags,omitempty"`
	ExtraFlagsKind TransportKind `json:"extraFlagsKind,omitempty"`
}

// EffectivePort returns Port, or 22 when unset.
func (r TransferRequest) EffectivePort() int {
	if r.Port <= 0 {
		return DefaultSSHPort
	}
	return r.Port
}

// Target returns "user@host".
func (r TransferRequest) Target() string {
	if r.DestinationUser == "" {
		return r.DestinationHost
	}
	return r.DestinationUser + "@" + r.DestinationHost
}

// RemoteDir returns DestinationDir as a POSIX path without a trailing slash.
// The root directory is returned as "/".
func (r TransferRequest) RemoteDir() string {
	d := strings.ReplaceAll(r.DestinationDir, "\\", "/")
	d = strings.TrimRight(d, "/")
	if d == "" {
		if strings.HasPrefix(r.DestinationDir, "/") {
			return "/"
		}
		return "."
	}
	return d
}

// RemoteDirArg returns RemoteDir with a trailing slash, marking the
// destination as a directory.
func (r TransferRequest) RemoteDirArg() string {
	d := r.RemoteDir()
	if d != "/" {
		d += "/"
	}
	return d
}

// RemoteSpec returns "user@host:/dir/", the destination argument used by
// rsync and scp.
func (r TransferRequest) RemoteSpec() string {
	return r.Target() + ":" + r.RemoteDirArg()
}

// FlagsFor returns ExtraFlags when they were meant for kind.
func (r TransferRequest) FlagsFor(kind TransportKind) []string {
	want := r.ExtraFlagsKind
	if want == "" {
		want = KindRsync
	}
	if want != kind {
		return nil
	}
	return r.ExtraFlags
}

// SourceInfo is the result of resolving a request's source exactly once.
// Command construction and uploads use it instead of stat-ing again.
type SourceInfo struct {
	Path    string      `json:"path"`
	IsDir   bool        `json:"isDir"`
	Size    int64       `json:"size"`
	Mode    os.FileMode `json:"mode"`
	ModTime time.Time   `json:"modTime"`
}

// Name returns the base name of the source.
func (s SourceInfo) Name() string {
	p := strings.TrimRight(strings.ReplaceAll(s.Path, "\\", "/"), "/")
	return path.Base(p)
}
