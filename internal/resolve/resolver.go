// Package resolve locates the transfer binaries available on a platform and
// probes what they can do. Resolution never fails: a tool that cannot be
// found is returned by its bare name and fails later, at spawn time.
package resolve

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/45Drives/studio-share-sub000/internal/logging"
	"github.com/45Drives/studio-share-sub000/internal/models"
)

var (
	darwinRsyncCandidates = []string{
		"/opt/homebrew/bin/rsync",
		"/usr/local/bin/rsync",
		"/usr/bin/rsync",
	}
	linuxRsyncCandidates = []string{
		"/usr/bin/rsync",
		"/usr/local/bin/rsync",
	}
	// Native Windows rsync builds; all expect /c/... paths.
	windowsRsyncCandidates = []string{
		`C:\Program Files\Git\usr\bin\rsync.exe`,
		`C:\Program Files\Git\mingw64\bin\rsync.exe`,
		`C:\Program Files\cwRsync\rsync.exe`,
		`C:\cygwin64\bin\rsync.exe`,
		`C:\cygwin\bin\rsync.exe`,
	}
	windowsScpCandidates = []string{
		`C:\Windows\System32\OpenSSH\scp.exe`,
		`C:\Program Files\Git\usr\bin\scp.exe`,
		`C:\Program Files\Git\mingw64\bin\scp.exe`,
	}
	windowsSSHCandidates = []string{
		`C:\Windows\System32\OpenSSH\ssh.exe`,
		`C:\Program Files\Git\usr\bin\ssh.exe`,
	}
	darwinSSHCandidates = []string{"/usr/bin/ssh"}
)

// Probe reports the release of a resolved rsync.
type Probe interface {
	Version(ctx context.Context, rt models.ResolvedTransport) (Version, error)
}

// Resolver picks the transport for a platform and caches the answer for the
// life of the process.
type Resolver struct {
	exists     func(path string) bool
	lookPath   func(file string) (string, error)
	probe      Probe
	preference models.TransportKind
	logger     *logging.Logger

	cache sync.Map // models.Platform -> models.ResolvedTransport
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFileCheck overrides how candidate paths are tested for existence.
func WithFileCheck(fn func(path string) bool) Option {
	return func(r *Resolver) { r.exists = fn }
}

// WithLookPath overrides the PATH search.
func WithLookPath(fn func(file string) (string, error)) Option {
	return func(r *Resolver) { r.lookPath = fn }
}

// WithProbe overrides the capability probe.
func WithProbe(p Probe) Option {
	return func(r *Resolver) { r.probe = p }
}

// WithPreference forces a transport kind instead of automatic selection.
// An empty kind means automatic.
func WithPreference(kind models.TransportKind) Option {
	return func(r *Resolver) { r.preference = kind }
}

// WithLogger sets the logger used for resolution decisions.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver backed by the real filesystem and PATH.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		exists:   fileExists,
		lookPath: exec.LookPath,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.probe == nil {
		r.probe = NewProber(nil)
	}
	return r
}

// Current returns the platform this process runs on.
func Current() models.Platform {
	return models.Platform{OS: runtime.GOOS}
}

// Resolve returns the transport to use on p. Concurrent first calls may both
// do the work; the results are identical so either may win the cache. A
// result whose probe was cut short by ctx is returned but not cached.
func (r *Resolver) Resolve(ctx context.Context, p models.Platform) models.ResolvedTransport {
	if v, ok := r.cache.Load(p); ok {
		return v.(models.ResolvedTransport)
	}

	rt := r.resolve(p)
	if rt.Kind == models.KindRsync {
		v, err := r.probe.Version(ctx, rt)
		if err != nil && ctx.Err() != nil {
			r.logger.Debug().Err(err).Str("os", p.OS).Msg("rsync probe interrupted, not caching")
			return rt
		}
		if err == nil {
			rt.Version = v.String()
			rt.SupportsRichProgress = v.SupportsProgress2()
			rt.ProtectArgs = v.SupportsProtectArgs()
		}
	}

	r.logger.Debug().
		Str("os", p.OS).
		Str("kind", string(rt.Kind)).
		Str("exe", rt.Executable).
		Str("host", string(rt.Host)).
		Str("ssh", rt.SSHExecutable).
		Str("version", rt.Version).
		Bool("progress2", rt.SupportsRichProgress).
		Bool("protect_args", rt.ProtectArgs).
		Msg("transport resolved")

	actual, _ := r.cache.LoadOrStore(p, rt)
	return actual.(models.ResolvedTransport)
}

// Forget drops any cached result, e.g. after the user installs rsync.
func (r *Resolver) Forget() {
	r.cache.Range(func(k, _ any) bool {
		r.cache.Delete(k)
		return true
	})
}

func (r *Resolver) resolve(p models.Platform) models.ResolvedTransport {
	rt := models.ResolvedTransport{
		Platform:      p,
		Host:          models.HostNative,
		SSHExecutable: r.findSSH(p),
	}

	switch r.preference {
	case models.KindSCP:
		rt.Kind = models.KindSCP
		rt.Executable = r.findSCP(p)
		return rt
	case models.KindSSHStream:
		rt.Kind = models.KindSSHStream
		rt.Executable = rt.SSHExecutable
		return rt
	case models.KindSFTP:
		rt.Kind = models.KindSFTP
		return rt
	case models.KindRsync:
		rt.Kind = models.KindRsync
		rt.Executable, rt.Host = r.findRsync(p)
		return rt
	}

	if !p.IsWindows() {
		rt.Kind = models.KindRsync
		rt.Executable, rt.Host = r.findRsync(p)
		return rt
	}

	if exe, host, ok := r.findWindowsRsync(); ok {
		rt.Kind = models.KindRsync
		rt.Executable, rt.Host = exe, host
		return rt
	}
	rt.Kind = models.KindSCP
	rt.Executable = r.findSCP(p)
	return rt
}

func (r *Resolver) findRsync(p models.Platform) (string, models.RsyncHost) {
	switch {
	case p.IsDarwin():
		return r.firstOf(darwinRsyncCandidates, true, "rsync"), models.HostNative
	case p.IsWindows():
		if exe, host, ok := r.findWindowsRsync(); ok {
			return exe, host
		}
		return "rsync", models.HostMSYS
	default:
		if found, err := r.lookPath("rsync"); err == nil {
			return found, models.HostNative
		}
		return r.firstOf(linuxRsyncCandidates, false, "rsync"), models.HostNative
	}
}

// findWindowsRsync tries native builds, then WSL, then an rsync on PATH.
func (r *Resolver) findWindowsRsync() (string, models.RsyncHost, bool) {
	for _, c := range windowsRsyncCandidates {
		if r.exists(c) {
			return c, models.HostMSYS, true
		}
	}
	if wsl, err := r.lookPath("wsl.exe"); err == nil {
		return wsl, models.HostWSL, true
	}
	for _, name := range []string{"rsync.exe", "rsync"} {
		if found, err := r.lookPath(name); err == nil {
			return found, models.HostMSYS, true
		}
	}
	return "", "", false
}

func (r *Resolver) findSCP(p models.Platform) string {
	if p.IsWindows() {
		return r.firstOf(windowsScpCandidates, true, "scp")
	}
	return r.firstOf(nil, true, "scp")
}

func (r *Resolver) findSSH(p models.Platform) string {
	switch {
	case p.IsWindows():
		return r.firstOf(windowsSSHCandidates, true, "ssh")
	case p.IsDarwin():
		return r.firstOf(darwinSSHCandidates, true, "ssh")
	default:
		return r.firstOf(nil, true, "ssh")
	}
}

// firstOf returns the first existing candidate, then (when searchPath) the
// PATH match for name, then name itself.
func (r *Resolver) firstOf(candidates []string, searchPath bool, name string) string {
	for _, c := range candidates {
		if r.exists(c) {
			return c
		}
	}
	if searchPath {
		if found, err := r.lookPath(name); err == nil {
			return found
		}
	}
	return name
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
