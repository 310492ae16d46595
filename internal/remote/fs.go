// Package remote is the SFTP transport. It dials SSH with the same
// hardening the subprocess transports use, then uploads through an FS
// abstraction so the upload logic can be tested against a local directory.
package remote

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
)

// FS is the subset of remote filesystem operations an upload needs.
// Paths are POSIX paths on the remote host.
type FS interface {
	Stat(p string) (os.FileInfo, error)
	Mkdir(p string) error
	Create(p string) (io.WriteCloser, error)
	Chmod(p string, mode os.FileMode) error
	Chtimes(p string, atime, mtime time.Time) error
}

// sftpFS adapts *sftp.Client to FS.
type sftpFS struct {
	c *sftp.Client
}

func (s sftpFS) Stat(p string) (os.FileInfo, error) { return s.c.Stat(p) }
func (s sftpFS) Mkdir(p string) error                { return s.c.Mkdir(p) }
func (s sftpFS) Chmod(p string, m os.FileMode) error { return s.c.Chmod(p, m) }

func (s sftpFS) Create(p string) (io.WriteCloser, error) {
	return s.c.Create(p)
}

func (s sftpFS) Chtimes(p string, atime, mtime time.Time) error {
	return s.c.Chtimes(p, atime, mtime)
}

// NotDirError is returned when a path component that must be a directory
// already exists as something else.
type NotDirError struct {
	Path string
}

func (e *NotDirError) Error() string {
	return fmt.Sprintf("remote path %s exists and is not a directory", e.Path)
}

// EnsureDir creates dir on the remote side one component at a time,
// accepting components that already exist as directories.
func EnsureDir(rfs FS, dir string) error {
	dir = path.Clean(strings.ReplaceAll(dir, `\`, "/"))
	if dir == "/" || dir == "." {
		return nil
	}

	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		cur = path.Join(cur, part)
		if err := ensureOne(rfs, cur); err != nil {
			return err
		}
	}
	return nil
}

func ensureOne(rfs FS, p string) error {
	info, err := rfs.Stat(p)
	switch {
	case err == nil:
		if !info.IsDir() {
			return &NotDirError{Path: p}
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat %s: %w", p, err)
	}

	if err := rfs.Mkdir(p); err != nil {
		// Another writer may have created it in between.
		if info, serr := rfs.Stat(p); serr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}
