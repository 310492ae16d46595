package command

import (
	"strconv"

	"github.com/45Drives/studio-share-sub000/internal/models"
)

// scpCopy uses OpenSSH scp with discrete arguments. scp prints no progress
// without a terminal; the session polls the remote size instead. Whether
// scp passes the remote path through a shell depends on its protocol
// version, so destinations that need quoting are refused and go over
// ssh-stream or SFTP instead.
type scpCopy struct{}

func (scpCopy) Name() string { return "scp" }

func (scpCopy) Build(job Job) (*Invocation, error) {
	if NeedsRemoteQuoting(job.Request.RemoteDir()) {
		return nil, ErrRemoteNeedsQuoting
	}
	args := []string{"-p"}
	if job.Source.IsDir {
		args = append(args, "-r")
	}
	// scp takes Kbit/s.
	if kbps := job.Request.BandwidthLimitKbps; kbps > 0 {
		args = append(args, "-l", strconv.Itoa(kbps*8))
	}
	args = append(args, sshArgs(job, "-P", nil)...)
	args = append(args, job.Request.FlagsFor(models.KindSCP)...)
	args = append(args, job.Source.Path, job.Request.RemoteSpec())

	return &Invocation{
		Executable: job.Transport.Executable,
		Args:       args,
		RemotePath: remoteFile(job),
	}, nil
}
