package remote

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/45Drives/studio-share-sub000/internal/localfs"
	"github.com/45Drives/studio-share-sub000/internal/logging"
	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/pathutil"
	"github.com/45Drives/studio-share-sub000/internal/progress"
	"github.com/45Drives/studio-share-sub000/internal/ratelimit"
	"github.com/45Drives/studio-share-sub000/internal/util/buffers"
)

// Uploader copies a local file or directory tree over an FS.
type Uploader struct {
	FS            FS
	BandwidthKbps int
	Walk          localfs.WalkOptions
	Logger        *logging.Logger
}

// Upload sends src into remoteDir. A file lands at remoteDir/<name>; a
// directory's contents land directly in remoteDir, like rsync with a
// trailing slash on the source.
//
// The tree is enumerated once before any byte is sent. That listing fixes
// the total and the file order; changes made to the tree afterwards are not
// picked up. onProgress receives the whole-transfer byte count, which never
// decreases and reaches the total exactly once.
func (u *Uploader) Upload(ctx context.Context, src models.SourceInfo, remoteDir string, onProgress func(done, total int64)) error {
	log := u.Logger
	if log == nil {
		log = logging.Nop()
	}

	tree, err := localfs.WalkCollect(ctx, src.Path, u.Walk)
	if err != nil {
		return err
	}
	log.Debug().Int("files", len(tree.Files)).Int64("bytes", tree.TotalBytes).Msg("enumerated source")

	if err := EnsureDir(u.FS, remoteDir); err != nil {
		return err
	}
	for _, d := range tree.Directories {
		if err := ensureOne(u.FS, pathutil.JoinRemote(remoteDir, d.Rel)); err != nil {
			return err
		}
	}

	counter := progress.NewCounter(tree.TotalBytes, onProgress)
	limiter := ratelimit.NewBandwidthLimiter(u.BandwidthKbps)
	chunk := buffers.ChunkSizeFor(u.BandwidthKbps)

	buf := buffers.Default.Get()
	defer buffers.Default.Put(buf)

	for _, f := range tree.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest := pathutil.JoinRemote(remoteDir, f.Rel)
		if err := u.copyFile(ctx, f, dest, (*buf)[:chunk], limiter, counter); err != nil {
			return err
		}
		u.preserve(log, f, dest)
	}
	counter.Finish()
	return nil
}

func (u *Uploader) copyFile(ctx context.Context, f localfs.Entry, dest string, buf []byte, limiter *ratelimit.Bucket, counter *progress.Counter) error {
	in, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer in.Close()

	out, err := u.FS.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	r := ratelimit.NewReader(ctx, in, limiter)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				return fmt.Errorf("write %s: %w", dest, werr)
			}
			counter.Add(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = out.Close()
			return fmt.Errorf("read %s: %w", f.Path, rerr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return nil
}

// preserve copies mode and mtime. Some servers refuse either; the data is
// already in place so this only warns.
func (u *Uploader) preserve(log *logging.Logger, f localfs.Entry, dest string) {
	if err := u.FS.Chmod(dest, f.Mode.Perm()); err != nil {
		log.Warn().Err(err).Str("path", dest).Msg("could not set remote mode")
	}
	if err := u.FS.Chtimes(dest, f.ModTime, f.ModTime); err != nil {
		log.Warn().Err(err).Str("path", dest).Msg("could not set remote mtime")
	}
}
