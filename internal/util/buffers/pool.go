// Package buffers provides reusable byte buffers for copy loops so that
// long uploads do not churn the heap.
package buffers

import (
	"sync"
	"sync/atomic"
)

const (
	// MinChunkSize and MaxChunkSize bound the stream copy chunk.
	MinChunkSize = 8 * 1024
	MaxChunkSize = 1024 * 1024
)

// Pool hands out buffers of one fixed size.
type Pool struct {
	size   int
	pool   sync.Pool
	allocs atomic.Int64
	gets   atomic.Int64
}

// NewPool creates a pool of size-byte buffers.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		p.allocs.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Default serves MaxChunkSize buffers.
var Default = NewPool(MaxChunkSize)

// Size returns the buffer size this pool serves.
func (p *Pool) Size() int { return p.size }

// Get retrieves a buffer. Return it with Put when done.
//
// Usage:
//
//	buf := pool.Get()
//	defer pool.Put(buf)
//	n, err := r.Read(*buf)
func (p *Pool) Get() *[]byte {
	p.gets.Add(1)
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of another size are dropped.
// The buffer is cleared so file contents do not linger across transfers.
func (p *Pool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	clear(*buf)
	p.pool.Put(buf)
}

// Stats describes pool usage.
type Stats struct {
	BufferSize  int
	Allocations int64 // new buffers created
	Gets        int64 // total Get calls
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{BufferSize: p.size, Allocations: p.allocs.Load(), Gets: p.gets.Load()}
}

// ChunkSizeFor maps a KB/s bandwidth limit to a copy chunk size clamped to
// MinChunkSize..MaxChunkSize. Zero or negative means unlimited and yields
// MaxChunkSize. Small chunks make a slow limit smoother.
func ChunkSizeFor(kbps int) int {
	if kbps <= 0 {
		return MaxChunkSize
	}
	size := kbps * 1024
	if size < MinChunkSize {
		return MinChunkSize
	}
	if size > MaxChunkSize {
		return MaxChunkSize
	}
	return size
}
