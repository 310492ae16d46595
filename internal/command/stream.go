package command

import (
	"fmt"
	"strconv"

	"github.com/alessio/shellescape"

	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/util/buffers"
)

// sshStream copies one file by piping it into `cat` on the remote host.
// The file is written under a temporary name, given the local mode and
// mtime, then renamed into place so a partial upload is never visible
// under the final name.
type sshStream struct{}

func (sshStream) Name() string { return "ssh-stream" }

func (sshStream) Build(job Job) (*Invocation, error) {
	if job.Source.IsDir {
		return nil, ErrStreamNeedsFile
	}

	final := remoteFile(job)
	tmp := fmt.Sprintf("%s.part-%d", final, job.now().UnixNano())

	args := sshArgs(job, "-p", nil)
	args = append(args, job.Request.FlagsFor(models.KindSSHStream)...)
	args = append(args, job.Request.Target(), RemoteStreamScript(job.Request.RemoteDir(), tmp, final, job.Source))

	return &Invocation{
		Executable: sshBinary(job, "ssh"),
		Args:       args,
		RemotePath: final,
		Feed: &Feed{
			Path:          job.Source.Path,
			Size:          job.Source.Size,
			ChunkSize:     buffers.ChunkSizeFor(job.Request.BandwidthLimitKbps),
			BandwidthKbps: job.Request.BandwidthLimitKbps,
		},
	}, nil
}

// RemoteStreamScript returns the remote command for a stream copy:
// `bash -lc '<script>'` where every path inside the script is quoted once
// for the inner shell and the script is quoted again for the outer one.
func RemoteStreamScript(dir, tmp, final string, src models.SourceInfo) string {
	q := shellescape.Quote
	mode := fmt.Sprintf("%04o", src.Mode.Perm())
	script := "set -euo pipefail; " +
		"mkdir -p " + q(dir) + "; " +
		"cat > " + q(tmp) + "; " +
		"chmod " + mode + " " + q(tmp) + "; " +
		"touch -d @" + strconv.FormatInt(src.ModTime.Unix(), 10) + " " + q(tmp) + "; " +
		"mv -f " + q(tmp) + " " + q(final)
	return "bash -lc " + q(script)
}

// RemoteSizeCommand returns the remote command printing path's size in
// bytes, used to poll scp progress.
func RemoteSizeCommand(path string) string {
	return "bash -lc " + shellescape.Quote("stat -c %s "+shellescape.Quote(path))
}

// SizeProbe builds the ssh invocation that prints the size of the remote
// file the job is writing.
func SizeProbe(job Job, remotePath string) *Invocation {
	args := sshArgs(job, "-p", nil)
	args = append(args, job.Request.Target(), RemoteSizeCommand(remotePath))
	return &Invocation{
		Strategy:   "remote-size",
		Executable: sshBinary(job, "ssh"),
		Args:       args,
		RemotePath: remotePath,
	}
}
