package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// ErrNoAuth is returned when neither an identity file nor an agent is
// available.
var ErrNoAuth = errors.New("no identity file given and no ssh agent available (SSH_AUTH_SOCK)")

// DialConfig holds the connection parameters for one SFTP session.
type DialConfig struct {
	Host           string
	Port           int
	User           string
	IdentityPath   string
	KnownHostsPath string

	ConnectTimeout    time.Duration
	KeepAliveInterval time.Duration
	KeepAliveMax      int

	// Getenv reads SSH_AUTH_SOCK; nil means os.Getenv.
	Getenv func(string) string
}

// Conn is an open SSH connection with an SFTP session on top.
type Conn struct {
	ssh  *ssh.Client
	sftp *sftp.Client
	done chan struct{}
}

// FS returns the SFTP filesystem of the connection.
func (c *Conn) FS() FS { return sftpFS{c: c.sftp} }

// Close closes the SFTP session and the SSH connection. Closing aborts any
// in-flight operation.
func (c *Conn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	err := c.sftp.Close()
	if cerr := c.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}

// Dial connects, authenticates with public keys and opens an SFTP session.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	auth, agentConn, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	if agentConn != nil {
		defer agentConn.Close()
	}
	hostKeys, err := AcceptNewHostKeys(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout > 0 {
		_ = nc.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
	}
	sc, chans, reqs, err := ssh.NewClientConn(nc, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.ConnectTimeout,
	})
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	_ = nc.SetDeadline(time.Time{})
	client := ssh.NewClient(sc, chans, reqs)

	sftpClient, err := sftp.NewClient(client, sftp.UseConcurrentWrites(true))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("start sftp subsystem: %w", err)
	}

	c := &Conn{ssh: client, sftp: sftpClient, done: make(chan struct{})}
	if cfg.KeepAliveInterval > 0 {
		go c.keepAlive(cfg.KeepAliveInterval, cfg.KeepAliveMax)
	}
	return c, nil
}

// keepAlive mirrors ServerAliveInterval/ServerAliveCountMax: after maxMissed
// unanswered probes in a row the connection is closed.
func (c *Conn) keepAlive(interval time.Duration, maxMissed int) {
	if maxMissed <= 0 {
		maxMissed = 1
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	missed := 0
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}
		reply := make(chan error, 1)
		go func() {
			_, _, err := c.ssh.SendRequest("keepalive@openssh.com", true, nil)
			reply <- err
		}()
		select {
		case <-c.done:
			return
		case err := <-reply:
			if err == nil {
				missed = 0
				continue
			}
			missed++
		case <-time.After(interval):
			missed++
		}
		if missed >= maxMissed {
			_ = c.ssh.Close()
			return
		}
	}
}

// authMethods returns the public key methods for cfg. The agent connection,
// when one is opened, is only needed until the handshake completes.
func authMethods(cfg DialConfig) ([]ssh.AuthMethod, net.Conn, error) {
	if cfg.IdentityPath != "" {
		pem, err := os.ReadFile(cfg.IdentityPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, nil, fmt.Errorf("identity file %s is passphrase protected; load it into ssh-agent instead", cfg.IdentityPath)
			}
			return nil, nil, fmt.Errorf("parse identity file: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil, nil
	}

	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	sock := getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, ErrNoAuth
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to ssh agent: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, conn, nil
}
