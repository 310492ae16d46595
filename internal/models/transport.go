package models

// TransportKind names the mechanism that moves bytes to the remote host.
type TransportKind string

const (
	KindRsync     TransportKind = "rsync"
	KindSCP       TransportKind = "scp"
	KindSFTP      TransportKind = "sftp-lib"
	KindSSHStream TransportKind = "ssh-stream"
)

// ParseTransportKind maps a user supplied name to a kind. "sftp" is
// accepted as shorthand for the library transport.
func ParseTransportKind(s string) (TransportKind, bool) {
	switch s {
	case "rsync":
		return KindRsync, true
	case "scp":
		return KindSCP, true
	case "sftp", "sftp-lib":
		return KindSFTP, true
	case "ssh-stream", "ssh":
		return KindSSHStream, true
	}
	return "", false
}

// Platform identifies the operating system a transport is resolved for.
// OS uses runtime.GOOS values.
type Platform struct {
	OS string `json:"os"`
}

func (p Platform) IsWindows() bool { return p.OS == "windows" }
func (p Platform) IsDarwin() bool  { return p.OS == "darwin" }

// RsyncHost describes how an rsync binary is hosted on the platform.
type RsyncHost string

const (
	HostNative RsyncHost = "native"
	// HostWSL runs rsync inside the Windows Subsystem for Linux via wsl.exe.
	HostWSL RsyncHost = "wsl"
	// HostMSYS is a native Windows rsync build (Git, cwRsync, Cygwin) that
	// expects /c/... style paths.
	HostMSYS RsyncHost = "msys"
)

// ResolvedTransport is the outcome of binary resolution for one platform.
// It may be cached for the process lifetime.
type ResolvedTransport struct {
	Platform   Platform      `json:"platform"`
	Kind       TransportKind `json:"kind"`
	Executable string        `json:"executable"`
	Host       RsyncHost     `json:"host,omitempty"`

	// SSHExecutable is the ssh client used by wrapper scripts, raw stream
	// copies and remote size polling.
	SSHExecutable string `json:"sshExecutable"`

	SupportsRichProgress bool `json:"supportsRichProgress"`
	// ProtectArgs is set for rsync 3.0 and later, which can send remote
	// paths without handing them to the remote shell.
	ProtectArgs bool `json:"protectArgs"`
	// Version is the probed rsync release, empty when unknown.
	Version string `json:"version,omitempty"`
}
