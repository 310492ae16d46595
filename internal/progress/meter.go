package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// speedSmoothingAlpha weights a new rate sample against the running average.
const speedSmoothingAlpha = 0.25

// minSampleInterval is the shortest window a rate sample is taken over.
const minSampleInterval = 100 * time.Millisecond

// Meter turns cumulative byte counts into Records for transports that report
// bytes instead of text (SFTP, raw SSH copy, remote size polling), so their
// records look the same as parsed rsync output.
type Meter struct {
	total int64
	now   func() time.Time

	mu       sync.Mutex
	start    time.Time
	lastAt   time.Time
	lastDone int64
	speed    float64 // bytes/sec, EMA smoothed
}

// NewMeter creates a meter for a transfer of total bytes. A total of zero or
// less disables percent and ETA.
func NewMeter(total int64) *Meter {
	return newMeterWithClock(total, time.Now)
}

func newMeterWithClock(total int64, now func() time.Time) *Meter {
	t := now()
	return &Meter{total: total, now: now, start: t, lastAt: t}
}

// Total returns the byte total the meter was built with.
func (m *Meter) Total() int64 { return m.total }

// Record builds a Record for done cumulative bytes.
func (m *Meter) Record(done int64) Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if elapsed := now.Sub(m.lastAt); elapsed >= minSampleInterval && done > m.lastDone {
		instant := float64(done-m.lastDone) / elapsed.Seconds()
		if m.speed > 0 {
			m.speed = speedSmoothingAlpha*instant + (1-speedSmoothingAlpha)*m.speed
		} else {
			m.speed = instant
		}
		m.lastDone = done
		m.lastAt = now
	}

	rec := Record{Bytes: int64Ptr(done)}
	if m.total > 0 {
		pct := float64(done) / float64(m.total) * 100
		rec.Percent = float64Ptr(clampPercent(pct))
		rec.Total = int64Ptr(m.total)
	}
	if m.speed > 0 {
		rec.Rate = FormatRate(m.speed)
		if m.total > 0 && done < m.total {
			remaining := float64(m.total-done) / m.speed
			rec.ETA = FormatClock(time.Duration(remaining * float64(time.Second)))
		}
	}
	if m.total > 0 && done >= m.total {
		rec.ETA = FormatClock(0)
	}
	rec.Raw = fmt.Sprintf("%d %.0f%% %s %s", done, rec.PercentOr(0), rec.Rate, rec.ETA)
	return rec
}

// FormatRate renders bytes/sec the way rsync --human-readable does, e.g.
// "69.6 MB/s".
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

// FormatClock renders d as H:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Throttle coalesces rapid updates. Allow returns true at most once per
// interval, and always for a final update.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewThrottle returns a Throttle with the given minimum interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now}
}

// Allow reports whether an update should be emitted now.
func (t *Throttle) Allow(final bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if final || t.last.IsZero() || now.Sub(t.last) >= t.interval {
		t.last = now
		return true
	}
	return false
}
