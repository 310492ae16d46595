// Package command turns a validated transfer into the exact subprocess
// invocation for the resolved transport. Each transport and host
// combination is a named Strategy; Build picks one and runs it.
package command

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/runner"
)

// ErrNoStrategy is returned for transports that are not subprocess based.
var ErrNoStrategy = errors.New("no command strategy for transport")

// ErrStreamNeedsFile is returned when a raw stream copy is asked to send a
// directory.
var ErrStreamNeedsFile = errors.New("ssh stream copy requires a single file source")

// SSHOptions are the connection hardening values applied to every ssh
// invocation.
type SSHOptions struct {
	ConnectTimeout      int // seconds
	ServerAliveInterval int // seconds
	ServerAliveCountMax int
}

// DefaultSSHOptions returns the stock hardening values.
func DefaultSSHOptions() SSHOptions {
	return SSHOptions{ConnectTimeout: 10, ServerAliveInterval: 15, ServerAliveCountMax: 2}
}

// Job is everything a strategy needs. Source was resolved once at
// validation time and is not stat-ed again here.
type Job struct {
	Request    models.TransferRequest
	Source     models.SourceInfo
	Transport  models.ResolvedTransport
	KnownHosts string
	SSH        SSHOptions

	// TempDir is where wrapper directories are created; empty means the
	// system default.
	TempDir string
	// Now stamps temporary remote names; nil means time.Now.
	Now func() time.Time
}

func (j Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Feed describes bytes the session must pipe into the child's stdin.
type Feed struct {
	Path          string
	Size          int64
	ChunkSize     int
	BandwidthKbps int
}

// Invocation is a built command plus the resources it owns.
type Invocation struct {
	Strategy   string
	Executable string
	Args       []string
	Env        []string

	// Feed is set when the command expects the file on stdin.
	Feed *Feed
	// RemotePath is the final remote file for single-file sources; empty
	// for directories.
	RemotePath string

	mu      sync.Mutex
	cleanup []func() error
}

// Command returns the runner form of the invocation without stdin.
func (inv *Invocation) Command() runner.Command {
	return runner.Command{Path: inv.Executable, Args: inv.Args, Env: inv.Env}
}

func (inv *Invocation) onCleanup(fn func() error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.cleanup = append(inv.cleanup, fn)
}

// Cleanup releases what the build created, such as wrapper scripts. It is
// safe to call more than once.
func (inv *Invocation) Cleanup() error {
	inv.mu.Lock()
	fns := inv.cleanup
	inv.cleanup = nil
	inv.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Strategy builds an invocation for one transport/host combination.
type Strategy interface {
	Name() string
	Build(job Job) (*Invocation, error)
}

// Select returns the strategy for the job's resolved transport.
func Select(job Job) (Strategy, error) {
	rt := job.Transport
	switch rt.Kind {
	case models.KindRsync:
		switch {
		case rt.Host == models.HostWSL:
			return wslRsync{}, nil
		case rt.Host == models.HostMSYS:
			return msysRsync{}, nil
		case rt.Platform.IsDarwin():
			return darwinRsync{}, nil
		default:
			return posixRsync{}, nil
		}
	case models.KindSCP:
		return scpCopy{}, nil
	case models.KindSSHStream:
		return sshStream{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoStrategy, rt.Kind)
}

// Build selects a strategy and builds the invocation.
func Build(job Job) (*Invocation, error) {
	s, err := Select(job)
	if err != nil {
		return nil, err
	}
	inv, err := s.Build(job)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	inv.Strategy = s.Name()
	return inv, nil
}
