package ratelimit

import (
	"context"
	"io"
)

// Reader paces reads from an underlying reader through a bucket.
type Reader struct {
	ctx    context.Context
	src    io.Reader
	bucket *Bucket
}

// NewReader wraps r. A nil bucket passes reads straight through.
func NewReader(ctx context.Context, r io.Reader, b *Bucket) *Reader {
	return &Reader{ctx: ctx, src: r, bucket: b}
}

// Read reads from the underlying reader, then waits until the bytes read
// fit the rate. Cancelling the context aborts the wait with its error.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		if werr := r.bucket.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
