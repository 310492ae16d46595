package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/pathutil"
)

const wrapperName = "sshwrap.sh"

// rsyncArgs returns the flags shared by every rsync strategy.
func rsyncArgs(job Job) []string {
	args := []string{"-az", "--human-readable", "--partial", "--inplace"}
	if job.Transport.SupportsRichProgress {
		args = append(args, "--info=progress2")
	} else {
		args = append(args, "--progress")
	}
	if job.Transport.ProtectArgs {
		args = append(args, "--protect-args")
	}
	if kbps := job.Request.BandwidthLimitKbps; kbps > 0 {
		args = append(args, "--bwlimit="+strconv.Itoa(kbps))
	}
	return append(args, job.Request.FlagsFor(models.KindRsync)...)
}

// rsyncDest returns the remote destination argument. Without
// --protect-args rsync hands the path to the remote shell, so it is
// escaped for that shell.
func rsyncDest(job Job) string {
	if job.Transport.ProtectArgs {
		return job.Request.RemoteSpec()
	}
	return job.Request.Target() + ":" + EscapeRemote(job.Request.RemoteDirArg())
}

// rsyncSource returns the source argument. Directories get a trailing
// slash so their contents land directly in the destination directory.
func rsyncSource(job Job, translate func(string) string) string {
	src := job.Source.Path
	if translate != nil {
		src = translate(src)
	}
	if job.Source.IsDir {
		return pathutil.WithTrailingSeparator(src, "/")
	}
	return src
}

func remoteFile(job Job) string {
	if job.Source.IsDir {
		return ""
	}
	return pathutil.JoinRemote(job.Request.RemoteDir(), job.Source.Name())
}

func sshBinary(job Job, fallback string) string {
	if job.Transport.SSHExecutable != "" {
		return job.Transport.SSHExecutable
	}
	return fallback
}

// posixRsync runs a native rsync with ssh options passed as one -e string.
type posixRsync struct{}

func (posixRsync) Name() string { return "posix-rsync" }

func (posixRsync) Build(job Job) (*Invocation, error) {
	ssh := append([]string{sshBinary(job, "ssh")}, sshArgs(job, "-p", nil)...)
	args := append(rsyncArgs(job), "-e", shellescape.QuoteCommand(ssh), rsyncSource(job, nil), rsyncDest(job))
	return &Invocation{
		Executable: job.Transport.Executable,
		Args:       args,
		RemotePath: remoteFile(job),
	}, nil
}

// msysRsync runs a native Windows rsync build (Git, cwRsync, Cygwin). Local
// paths are given in /c/... form and ssh is the one shipped beside rsync.
type msysRsync struct{}

func (msysRsync) Name() string { return "msys-rsync" }

func (msysRsync) Build(job Job) (*Invocation, error) {
	ssh := append([]string{"ssh"}, sshArgs(job, "-p", pathutil.ToMSYS)...)
	args := append(rsyncArgs(job), "-e", shellescape.QuoteCommand(ssh), rsyncSource(job, pathutil.ToMSYS), rsyncDest(job))
	return &Invocation{
		Executable: job.Transport.Executable,
		Args:       args,
		RemotePath: remoteFile(job),
	}, nil
}

// wslRsync runs rsync inside WSL through `wsl.exe bash -lc`. The whole
// rsync command line is one shell string with every token quoted.
type wslRsync struct{}

func (wslRsync) Name() string { return "wsl-rsync" }

func (wslRsync) Build(job Job) (*Invocation, error) {
	ssh := append([]string{"ssh"}, sshArgs(job, "-p", pathutil.ToWSL)...)
	tokens := append([]string{"rsync"}, rsyncArgs(job)...)
	tokens = append(tokens, "-e", shellescape.QuoteCommand(ssh), rsyncSource(job, pathutil.ToWSL), rsyncDest(job))
	return &Invocation{
		Executable: job.Transport.Executable,
		Args:       []string{"bash", "-lc", shellescape.QuoteCommand(tokens)},
		RemotePath: remoteFile(job),
	}, nil
}

// darwinRsync hands rsync a throwaway ssh wrapper script. macOS rsync
// builds split -e on spaces without honoring quotes, so paths with spaces
// only survive inside a script.
type darwinRsync struct{}

func (darwinRsync) Name() string { return "darwin-rsync" }

func (darwinRsync) Build(job Job) (*Invocation, error) {
	inv := &Invocation{Executable: job.Transport.Executable, RemotePath: remoteFile(job)}

	wrapper, err := writeSSHWrapper(job)
	if err != nil {
		return nil, err
	}
	inv.onCleanup(func() error { return os.RemoveAll(filepath.Dir(wrapper)) })

	inv.Args = append(rsyncArgs(job), "-e", wrapper, rsyncSource(job, nil), rsyncDest(job))
	return inv, nil
}

// writeSSHWrapper creates a fresh private directory holding an executable
// sh script that runs ssh with the job's options and forwards "$@".
func writeSSHWrapper(job Job) (string, error) {
	dir, err := os.MkdirTemp(job.TempDir, "rs-ssh-")
	if err != nil {
		return "", fmt.Errorf("create wrapper dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("chmod wrapper dir: %w", err)
	}

	ssh := append([]string{sshBinary(job, "/usr/bin/ssh")}, sshArgs(job, "-p", nil)...)
	script := strings.Join([]string{
		"#!/bin/sh",
		"exec " + shellescape.QuoteCommand(ssh) + ` "$@"`,
		"",
	}, "\n")

	path := filepath.Join(dir, wrapperName)
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write wrapper: %w", err)
	}
	return path, nil
}
