// Package localfs enumerates local upload sources. A directory is walked
// once up front and the result is treated as authoritative for the rest of
// the transfer.
package localfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one enumerated file or directory.
type Entry struct {
	Path    string // local path
	Rel     string // slash separated path relative to the walk root
	Size    int64  // 0 for directories
	IsDir   bool
	ModTime time.Time
	Mode    fs.FileMode
}

// WalkOptions configures WalkCollect.
type WalkOptions struct {
	// SkipHidden leaves out dot files and does not descend into dot
	// directories. Uploads copy everything by default, like rsync -a.
	SkipHidden bool
}

// WalkResult is the authoritative listing of a source tree.
type WalkResult struct {
	Directories []Entry // parents always precede children
	Files       []Entry
	TotalBytes  int64
}

// WalkCollect walks root iteratively and collects every directory and
// regular file beneath it. Symlinks and other special files are skipped.
// Unreadable subdirectories fail the walk rather than silently shrinking
// the total.
func WalkCollect(ctx context.Context, root string, opts WalkOptions) (*WalkResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", root, err)
	}
	res := &WalkResult{}
	if !info.IsDir() {
		res.Files = append(res.Files, entryFor(root, info.Name(), info))
		res.TotalBytes = info.Size()
		return res, nil
	}

	stack := []string{""}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dir := root
		if rel != "" {
			dir = filepath.Join(root, filepath.FromSlash(rel))
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
		}

		// Pushed in reverse so the walk pops them in name order.
		var subdirs []string
		for _, d := range entries {
			name := d.Name()
			if opts.SkipHidden && dotName(name) {
				continue
			}
			entryRel := name
			if rel != "" {
				entryRel = rel + "/" + name
			}

			info, err := d.Info()
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", filepath.Join(dir, name), err)
			}
			switch {
			case info.IsDir():
				res.Directories = append(res.Directories, entryFor(filepath.Join(dir, name), entryRel, info))
				subdirs = append(subdirs, entryRel)
			case info.Mode().IsRegular():
				res.Files = append(res.Files, entryFor(filepath.Join(dir, name), entryRel, info))
				res.TotalBytes += info.Size()
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return res, nil
}

func entryFor(path, rel string, info fs.FileInfo) Entry {
	e := Entry{
		Path:    path,
		Rel:     rel,
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

// dotName reports whether name is a Unix style hidden entry. The "." and
// ".." links never are.
func dotName(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}
