package resolve

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/runner"
)

// probeTimeout bounds the single --version invocation.
const probeTimeout = 10 * time.Second

var versionRe = regexp.MustCompile(`(?i)rsync\s+version\s+(\d+)\.(\d+)\.(\d+)`)

// Version is an rsync release number.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
}

// SupportsProgress2 reports whether this release understands
// --info=progress2 (added in 3.1.0).
func (v Version) SupportsProgress2() bool {
	return v.Major > 3 || (v.Major == 3 && v.Minor >= 1)
}

// SupportsProtectArgs reports whether this release understands
// --protect-args (added in 3.0.0).
func (v Version) SupportsProtectArgs() bool {
	return v.Major >= 3
}

// ErrUnknownVersion means the --version output could not be parsed.
var ErrUnknownVersion = errors.New("unrecognized rsync version output")

// ParseVersion extracts the release number from `rsync --version` output.
func ParseVersion(out string) (Version, bool) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return Version{}, false
	}
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, false
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, false
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, false
	}
	return v, true
}

// SupportsRichProgressOutput decides rich progress support from captured
// `rsync --version` output. Unparseable output means no support.
func SupportsRichProgressOutput(out string) bool {
	v, ok := ParseVersion(out)
	return ok && v.SupportsProgress2()
}

// OutputFunc runs a command to completion and returns what it printed.
type OutputFunc func(ctx context.Context, cmd runner.Command) ([]byte, error)

// Prober asks an rsync binary for its version.
type Prober struct {
	output OutputFunc
}

// NewProber creates a prober. A nil fn runs the real binary.
func NewProber(fn OutputFunc) *Prober {
	if fn == nil {
		fn = runner.Output
	}
	return &Prober{output: fn}
}

// Version runs `<rsync> --version` (through `bash -lc` when rsync lives
// inside WSL) and parses the release number.
func (p *Prober) Version(ctx context.Context, rt models.ResolvedTransport) (Version, error) {
	if rt.Kind != models.KindRsync {
		return Version{}, ErrUnknownVersion
	}

	cmd := runner.Command{Path: rt.Executable, Args: []string{"--version"}}
	if rt.Host == models.HostWSL {
		cmd.Args = []string{"bash", "-lc", "rsync --version"}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := p.output(ctx, cmd)
	if err != nil {
		return Version{}, err
	}
	v, ok := ParseVersion(string(out))
	if !ok {
		return Version{}, ErrUnknownVersion
	}
	return v, nil
}

// SupportsRichProgress reports whether rt's rsync understands
// --info=progress2. Any probe failure yields false.
func (p *Prober) SupportsRichProgress(ctx context.Context, rt models.ResolvedTransport) bool {
	v, err := p.Version(ctx, rt)
	return err == nil && v.SupportsProgress2()
}
