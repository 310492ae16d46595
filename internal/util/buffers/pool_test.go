package buffers

import "testing"

// TestPoolGetPut verifies that buffers can be retrieved and returned
func TestPoolGetPut(t *testing.T) {
	p := NewPool(4096)

	buf := p.Get()
	if buf == nil {
		t.Fatal("Get returned nil")
	}
	if len(*buf) != 4096 {
		t.Errorf("Buffer size = %d, want 4096", len(*buf))
	}
	(*buf)[0] = 0xff
	p.Put(buf)

	buf2 := p.Get()
	if (*buf2)[0] != 0 {
		t.Error("returned buffers must be cleared")
	}
	p.Put(buf2)

	if s := p.Stats(); s.Gets != 2 || s.BufferSize != 4096 {
		t.Errorf("stats = %+v", s)
	}
}

// TestPutWrongSize verifies wrong-sized buffers are not pooled
func TestPutWrongSize(t *testing.T) {
	p := NewPool(4096)
	wrong := make([]byte, 1024)
	p.Put(&wrong) // Should not panic, just not pool it
	p.Put(nil)
}

func TestChunkSizeFor(t *testing.T) {
	tests := []struct {
		kbps int
		want int
	}{
		{0, MaxChunkSize},
		{-5, MaxChunkSize},
		{1, MinChunkSize},
		{8, MinChunkSize},
		{64, 64 * 1024},
		{1024, MaxChunkSize},
		{50000, MaxChunkSize},
	}
	for _, tt := range tests {
		if got := ChunkSizeFor(tt.kbps); got != tt.want {
			t.Errorf("ChunkSizeFor(%d) = %d, want %d", tt.kbps, got, tt.want)
		}
	}
}

// TestConcurrentAccess tests concurrent buffer get/put operations
func TestConcurrentAccess(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	p := NewPool(MinChunkSize)
	done := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				buf := p.Get()
				(*buf)[0] = byte(j)
				p.Put(buf)
			}
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}
}

// BenchmarkDefaultPool benchmarks buffer allocation with pooling
func BenchmarkDefaultPool(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := Default.Get()
		_ = (*buf)[0]
		Default.Put(buf)
	}
}
