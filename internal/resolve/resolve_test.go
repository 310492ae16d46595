package resolve

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/runner"
)

// countingProbe answers with version, or fails when version is zero.
type countingProbe struct {
	calls   atomic.Int32
	version Version
}

func (p *countingProbe) Version(ctx context.Context, _ models.ResolvedTransport) (Version, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	if p.version == (Version{}) {
		return Version{}, ErrUnknownVersion
	}
	return p.version, nil
}

func fakeFS(paths ...string) func(string) bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(p string) bool { return set[p] }
}

func fakePath(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
}

func TestResolve(t *testing.T) {
	darwin := models.Platform{OS: "darwin"}
	linux := models.Platform{OS: "linux"}
	windows := models.Platform{OS: "windows"}

	tests := []struct {
		name     string
		platform models.Platform
		files    []string
		path     map[string]string
		pref     models.TransportKind
		want     models.ResolvedTransport
	}{
		{
			name:     "darwin prefers homebrew over system rsync",
			platform: darwin,
			files:    []string{"/opt/homebrew/bin/rsync", "/usr/bin/rsync", "/usr/bin/ssh"},
			want: models.ResolvedTransport{Platform: darwin, Kind: models.KindRsync,
				Executable: "/opt/homebrew/bin/rsync", Host: models.HostNative, SSHExecutable: "/usr/bin/ssh"},
		},
		{
			name:     "darwin falls back to PATH",
			platform: darwin,
			path:     map[string]string{"rsync": "/nix/bin/rsync", "ssh": "/nix/bin/ssh"},
			want: models.ResolvedTransport{Platform: darwin, Kind: models.KindRsync,
				Executable: "/nix/bin/rsync", Host: models.HostNative, SSHExecutable: "/nix/bin/ssh"},
		},
		{
			name:     "darwin bare name when nothing exists",
			platform: darwin,
			want: models.ResolvedTransport{Platform: darwin, Kind: models.KindRsync,
				Executable: "rsync", Host: models.HostNative, SSHExecutable: "ssh"},
		},
		{
			name:     "linux uses PATH first",
			platform: linux,
			files:    []string{"/usr/bin/rsync"},
			path:     map[string]string{"rsync": "/opt/rsync/bin/rsync", "ssh": "/usr/bin/ssh"},
			want: models.ResolvedTransport{Platform: linux, Kind: models.KindRsync,
				Executable: "/opt/rsync/bin/rsync", Host: models.HostNative, SSHExecutable: "/usr/bin/ssh"},
		},
		{
			name:     "linux well-known path after PATH",
			platform: linux,
			files:    []string{"/usr/local/bin/rsync"},
			want: models.ResolvedTransport{Platform: linux, Kind: models.KindRsync,
				Executable: "/usr/local/bin/rsync", Host: models.HostNative, SSHExecutable: "ssh"},
		},
		{
			name:     "windows git rsync is msys hosted",
			platform: windows,
			files:    []string{`C:\Program Files\Git\usr\bin\rsync.exe`, `C:\Windows\System32\OpenSSH\ssh.exe`},
			path:     map[string]string{"wsl.exe": `C:\Windows\System32\wsl.exe`},
			want: models.ResolvedTransport{Platform: windows, Kind: models.KindRsync,
				Executable: `C:\Program Files\Git\usr\bin\rsync.exe`, Host: models.HostMSYS,
				SSHExecutable: `C:\Windows\System32\OpenSSH\ssh.exe`},
		},
		{
			name:     "windows wsl",
			platform: windows,
			path:     map[string]string{"wsl.exe": `C:\Windows\System32\wsl.exe`},
			want: models.ResolvedTransport{Platform: windows, Kind: models.KindRsync,
				Executable: `C:\Windows\System32\wsl.exe`, Host: models.HostWSL, SSHExecutable: "ssh"},
		},
		{
			name:     "windows without rsync uses scp",
			platform: windows,
			files:    []string{`C:\Windows\System32\OpenSSH\scp.exe`, `C:\Windows\System32\OpenSSH\ssh.exe`},
			want: models.ResolvedTransport{Platform: windows, Kind: models.KindSCP,
				Executable: `C:\Windows\System32\OpenSSH\scp.exe`, Host: models.HostNative,
				SSHExecutable: `C:\Windows\System32\OpenSSH\ssh.exe`},
		},
		{
			name:     "windows with nothing installed",
			platform: windows,
			want: models.ResolvedTransport{Platform: windows, Kind: models.KindSCP,
				Executable: "scp", Host: models.HostNative, SSHExecutable: "ssh"},
		},
		{
			name:     "forced sftp needs no executable",
			platform: linux,
			path:     map[string]string{"rsync": "/usr/bin/rsync"},
			pref:     models.KindSFTP,
			want: models.ResolvedTransport{Platform: linux, Kind: models.KindSFTP,
				Host: models.HostNative, SSHExecutable: "ssh"},
		},
		{
			name:     "forced ssh stream uses ssh",
			platform: linux,
			path:     map[string]string{"ssh": "/usr/bin/ssh"},
			pref:     models.KindSSHStream,
			want: models.ResolvedTransport{Platform: linux, Kind: models.KindSSHStream,
				Executable: "/usr/bin/ssh", Host: models.HostNative, SSHExecutable: "/usr/bin/ssh"},
		},
		{
			name:     "forced rsync on bare windows",
			platform: windows,
			pref:     models.KindRsync,
			want: models.ResolvedTransport{Platform: windows, Kind: models.KindRsync,
				Executable: "rsync", Host: models.HostMSYS, SSHExecutable: "ssh"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(
				WithFileCheck(fakeFS(tt.files...)),
				WithLookPath(fakePath(tt.path)),
				WithProbe(&countingProbe{}),
				WithPreference(tt.pref),
			)
			got := r.Resolve(context.Background(), tt.platform)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}

func TestResolveCachesPerPlatform(t *testing.T) {
	probe := &countingProbe{version: Version{3, 2, 7}}
	r := NewResolver(
		WithFileCheck(fakeFS("/usr/bin/rsync")),
		WithLookPath(fakePath(nil)),
		WithProbe(probe),
	)
	linux := models.Platform{OS: "linux"}

	first := r.Resolve(context.Background(), linux)
	if !first.SupportsRichProgress || !first.ProtectArgs || first.Version != "3.2.7" {
		t.Errorf("probe result not applied: %+v", first)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := r.Resolve(context.Background(), linux); got != first {
				t.Errorf("cached result differs: %+v", got)
			}
		}()
	}
	wg.Wait()

	if n := probe.calls.Load(); n != 1 {
		t.Errorf("probe ran %d times, want 1", n)
	}

	r.Resolve(context.Background(), models.Platform{OS: "darwin"})
	if n := probe.calls.Load(); n != 2 {
		t.Errorf("other platform should resolve separately, probe calls = %d", n)
	}

	r.Forget()
	r.Resolve(context.Background(), linux)
	if n := probe.calls.Load(); n != 3 {
		t.Errorf("Forget should drop the cache, probe calls = %d", n)
	}
}

func TestResolveSkipsProbeForSCP(t *testing.T) {
	probe := &countingProbe{version: Version{3, 2, 7}}
	r := NewResolver(WithFileCheck(fakeFS()), WithLookPath(fakePath(nil)), WithProbe(probe))
	rt := r.Resolve(context.Background(), models.Platform{OS: "windows"})
	if rt.Kind != models.KindSCP || rt.SupportsRichProgress {
		t.Errorf("unexpected %+v", rt)
	}
	if probe.calls.Load() != 0 {
		t.Error("scp must not be probed")
	}
}

func TestCanceledProbeIsNotCached(t *testing.T) {
	p := NewProber(func(ctx context.Context, _ runner.Command) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("rsync  version 3.2.7  protocol version 31\n"), nil
	})
	r := NewResolver(WithFileCheck(fakeFS("/usr/bin/rsync")), WithLookPath(fakePath(nil)), WithProbe(p))
	linux := models.Platform{OS: "linux"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if rt := r.Resolve(ctx, linux); rt.SupportsRichProgress {
		t.Errorf("canceled resolve = %+v", rt)
	}

	rt := r.Resolve(context.Background(), linux)
	if !rt.SupportsRichProgress || !rt.ProtectArgs || rt.Version != "3.2.7" {
		t.Errorf("live resolve after canceled one = %+v", rt)
	}
}

func TestVersionCapabilities(t *testing.T) {
	tests := []struct {
		v                  Version
		progress2, protect bool
	}{
		{Version{2, 6, 9}, false, false},
		{Version{3, 0, 9}, false, true},
		{Version{3, 1, 3}, true, true},
		{Version{3, 2, 7}, true, true},
	}
	for _, tt := range tests {
		if tt.v.SupportsProgress2() != tt.progress2 || tt.v.SupportsProtectArgs() != tt.protect {
			t.Errorf("%s: progress2=%v protect=%v", tt.v, tt.v.SupportsProgress2(), tt.v.SupportsProtectArgs())
		}
	}
}

func TestSupportsRichProgressOutput(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{"rsync  version 3.0.9  protocol version 30", false},
		{"rsync  version 3.1.0  protocol version 31", true},
		{"rsync  version v3.2.3  protocol version 31", false},
		{"rsync  version 3.2.3  protocol version 31\nCopyright (C) 1996-2020", true},
		{"openrsync: protocol version 29\nrsync version 2.6.9 compatible", false},
		{"RSYNC VERSION 4.0.0", true},
		{"garbage", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := SupportsRichProgressOutput(tt.out); got != tt.want {
			t.Errorf("SupportsRichProgressOutput(%q) = %v, want %v", tt.out, got, tt.want)
		}
	}
}

func TestParseVersion(t *testing.T) {
	v, ok := ParseVersion("rsync  version 3.2.7  protocol version 31")
	if !ok || v != (Version{3, 2, 7}) {
		t.Fatalf("ParseVersion = %v, %v", v, ok)
	}
	if v.String() != "3.2.7" {
		t.Errorf("String() = %q", v.String())
	}
}

func TestProberInvocation(t *testing.T) {
	var got runner.Command
	p := NewProber(func(_ context.Context, cmd runner.Command) ([]byte, error) {
		got = cmd
		return []byte("rsync  version 3.2.3  protocol version 31\n"), nil
	})

	native := models.ResolvedTransport{Kind: models.KindRsync, Executable: "/usr/bin/rsync", Host: models.HostNative}
	if !p.SupportsRichProgress(context.Background(), native) {
		t.Error("3.2.3 should support progress2")
	}
	if got.Path != "/usr/bin/rsync" || !reflect.DeepEqual(got.Args, []string{"--version"}) {
		t.Errorf("native probe ran %+v", got)
	}

	wsl := models.ResolvedTransport{Kind: models.KindRsync, Executable: "wsl.exe", Host: models.HostWSL}
	p.SupportsRichProgress(context.Background(), wsl)
	if got.Path != "wsl.exe" || !reflect.DeepEqual(got.Args, []string{"bash", "-lc", "rsync --version"}) {
		t.Errorf("wsl probe ran %+v", got)
	}
}

func TestProberVersion(t *testing.T) {
	p := NewProber(func(context.Context, runner.Command) ([]byte, error) {
		return []byte("openrsync: protocol version 29\nrsync version 2.6.9 compatible\n"), nil
	})
	v, err := p.Version(context.Background(), models.ResolvedTransport{Kind: models.KindRsync, Executable: "/usr/bin/rsync"})
	if err != nil || v != (Version{2, 6, 9}) {
		t.Errorf("Version = %v, %v", v, err)
	}

	garbled := NewProber(func(context.Context, runner.Command) ([]byte, error) { return []byte("rsync"), nil })
	if _, err := garbled.Version(context.Background(), models.ResolvedTransport{Kind: models.KindRsync}); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("err = %v, want ErrUnknownVersion", err)
	}
}

func TestProberFailureMeansNoSupport(t *testing.T) {
	p := NewProber(func(context.Context, runner.Command) ([]byte, error) {
		return []byte("rsync  version 3.2.3"), errors.New("exit status 1")
	})
	rt := models.ResolvedTransport{Kind: models.KindRsync, Executable: "rsync"}
	if p.SupportsRichProgress(context.Background(), rt) {
		t.Error("a failed probe must report false")
	}
	if p.SupportsRichProgress(context.Background(), models.ResolvedTransport{Kind: models.KindSCP}) {
		t.Error("non-rsync transports never support rich progress")
	}
}
