package remote

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// knownHostsMu serializes appends to known hosts files from concurrent
// sessions in this process.
var knownHostsMu sync.Mutex

// AcceptNewHostKeys returns a host key callback with OpenSSH's
// StrictHostKeyChecking=accept-new behaviour: unknown hosts are appended
// to the file and trusted, known hosts must match.
func AcceptNewHostKeys(file string) (ssh.HostKeyCallback, error) {
	if err := ensureFile(file); err != nil {
		return nil, err
	}
	check, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("read known hosts %s: %w", file, err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(file, hostname, key)
		}
		return err
	}, nil
}

func ensureFile(file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return fmt.Errorf("create known hosts dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known hosts %s: %w", file, err)
	}
	return f.Close()
}

func appendKnownHost(file, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known hosts %s: %w", file, err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append known host: %w", err)
	}
	return f.Close()
}
