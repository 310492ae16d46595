package command

import "strconv"

// hardeningOptions returns the -o options every ssh connection uses.
// knownHosts may be empty, in which case ssh's default file applies.
func hardeningOptions(knownHosts string, o SSHOptions) []string {
	opts := []string{
		"-o", "BatchMode=yes",
		"-o", "PreferredAuthentications=publickey",
		"-o", "StrictHostKeyChecking=accept-new",
	}
	if knownHosts != "" {
		opts = append(opts, "-o", "UserKnownHostsFile="+knownHosts)
	}
	return append(opts,
		"-o", "ConnectTimeout="+strconv.Itoa(o.ConnectTimeout),
		"-o", "ServerAliveInterval="+strconv.Itoa(o.ServerAliveInterval),
		"-o", "ServerAliveCountMax="+strconv.Itoa(o.ServerAliveCountMax),
	)
}

// sshArgs returns the ssh client options for job. translate maps local
// paths (identity, known hosts) into the form the ssh binary expects.
// portFlag is "-p" for ssh and "-P" for scp.
func sshArgs(job Job, portFlag string, translate func(string) string) []string {
	if translate == nil {
		translate = func(p string) string { return p }
	}
	var args []string
	if job.Request.Port > 0 {
		args = append(args, portFlag, strconv.Itoa(job.Request.Port))
	}
	if job.Request.IdentityPath != "" {
		args = append(args, "-i", translate(job.Request.IdentityPath), "-o", "IdentitiesOnly=yes")
	}
	knownHosts := ""
	if job.KnownHosts != "" {
		knownHosts = translate(job.KnownHosts)
	}
	return append(args, hardeningOptions(knownHosts, job.SSH)...)
}
