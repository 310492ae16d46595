package ratelimit

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time      { return c.t }
func (c *fakeClock) add(d time.Duration) { c.t = c.t.Add(d) }

func near(got, want float64) bool { return math.Abs(got-want) < 0.01 }

func TestBucketRefill(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b := newWithClock(10, 5, clk.now)

	tests := []struct {
		name    string
		take    float64
		advance time.Duration
		want    float64
	}{
		{"starts full", 0, 0, 5},
		{"take three", 3, 0, 2},
		{"refill 100ms", 0, 100 * time.Millisecond, 3},
		{"caps at burst", 0, 10 * time.Second, 5},
		{"debt reads as zero", 8, 0, 0},
		{"debt repaid", 0, 300 * time.Millisecond, 0},
		{"positive again", 0, 100 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		if tt.take > 0 {
			b.reserve(tt.take)
		}
		clk.add(tt.advance)
		if got := b.Available(); !near(got, tt.want) {
			t.Errorf("%s: available = %.2f, want %.2f", tt.name, got, tt.want)
		}
	}
}

func TestReserveDelay(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	b := newWithClock(1000, 100, clk.now)

	if d := b.reserve(100); d != 0 {
		t.Errorf("burst reservation delayed %v", d)
	}
	if d := b.reserve(250); !near(d.Seconds(), 0.25) {
		t.Errorf("delay = %v, want 250ms", d)
	}
	// Queued behind the previous debt.
	if d := b.reserve(50); !near(d.Seconds(), 0.3) {
		t.Errorf("delay = %v, want 300ms", d)
	}
}

func TestRefundOnCancel(t *testing.T) {
	b := New(1, 1)
	b.reserve(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.WaitN(ctx, 5); err != context.DeadlineExceeded {
		t.Fatalf("WaitN = %v, want DeadlineExceeded", err)
	}
	// Only the first reservation remains outstanding.
	if d := b.reserve(0.5); d > 2*time.Second {
		t.Errorf("refund missing, delay %v", d)
	}
}

func TestWaitNPaces(t *testing.T) {
	b := New(1000, 100)
	start := time.Now()
	if err := b.WaitN(context.Background(), 300); err != nil {
		t.Fatal(err)
	}
	// 100 from the burst, 200 at 1000/s.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("WaitN(300) took %v", elapsed)
	}
}

func TestWaitNCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(1, 1).WaitN(ctx, 1); err != context.Canceled {
		t.Errorf("WaitN = %v", err)
	}
}

func TestNilBucket(t *testing.T) {
	var b *Bucket
	if err := b.WaitN(context.Background(), 1<<30); err != nil {
		t.Errorf("nil bucket returned %v", err)
	}
	for _, kbps := range []int{0, -10} {
		if NewBandwidthLimiter(kbps) != nil {
			t.Errorf("NewBandwidthLimiter(%d) should be nil", kbps)
		}
	}
}

func TestBandwidthLimiterSizing(t *testing.T) {
	b := NewBandwidthLimiter(512)
	if b.rate != 512*1024 || b.burst != 512*1024/4 {
		t.Errorf("rate %v burst %v", b.rate, b.burst)
	}
}

func TestReaderPacesAndCopiesEverything(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	b := New(16*1024, 1024)

	start := time.Now()
	var out bytes.Buffer
	if _, err := io.Copy(&out, NewReader(context.Background(), strings.NewReader(payload), b)); err != nil {
		t.Fatal(err)
	}
	if out.String() != payload {
		t.Error("payload corrupted")
	}
	// 1024 burst, 3072 more at 16KiB/s.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("copy took %v, expected pacing", elapsed)
	}
}

func TestReaderCancel(t *testing.T) {
	b := New(1, 1)
	b.reserve(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(ctx, strings.NewReader("abc"), b)
	if _, err := r.Read(make([]byte, 3)); err != context.Canceled {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}
