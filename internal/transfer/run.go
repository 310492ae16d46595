package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/command"
	"github.com/45Drives/studio-share-sub000/internal/events"
	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/progress"
	"github.com/45Drives/studio-share-sub000/internal/ratelimit"
	"github.com/45Drives/studio-share-sub000/internal/runner"
)

func (m *Manager) job(s *Session, rt models.ResolvedTransport) command.Job {
	return command.Job{
		Request:    s.Request,
		Source:     s.Source,
		Transport:  rt,
		KnownHosts: m.knownHosts(s.Request),
		SSH:        m.cfg.SSH,
		TempDir:    m.cfg.TempDir,
	}
}

// runCommand drives the subprocess transports.
func (m *Manager) runCommand(s *Session, rt models.ResolvedTransport) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	job := m.job(s, rt)
	inv, err := command.Build(job)
	if err != nil {
		return err
	}
	defer func() {
		if err := inv.Cleanup(); err != nil {
			m.log.Warn().Str("id", s.ID).Err(err).Msg("cleanup failed")
		}
	}()
	s.setStrategy(inv.Strategy)

	cmd := inv.Command()
	counted := false
	if inv.Feed != nil {
		in, closer, err := m.openFeed(s, inv.Feed)
		if err != nil {
			return err
		}
		defer closer.Close()
		cmd.Stdin = in
		counted = true
	}

	if !s.transition(StateRunning) {
		return context.Canceled
	}
	m.log.Debug().Str("id", s.ID).Str("command", m.log.Scrubber().Scrub(cmd.String())).Msg("starting transport")

	proc, err := m.start(s.ctx, cmd, m.lineHandler(s, rt))
	if err != nil {
		var startErr *runner.StartError
		if errors.As(err, &startErr) {
			return &SpawnError{Executable: startErr.Path, Err: startErr.Err}
		}
		return err
	}
	m.started(s)

	stopPoll := func() {}
	if rt.Kind == models.KindSCP && inv.RemotePath != "" {
		stopPoll = m.pollRemoteSize(s, job, inv.RemotePath)
		counted = true
	}
	err = proc.Wait()
	stopPoll()

	if err != nil {
		var exitErr *runner.ExitError
		if errors.As(err, &exitErr) {
			return &TransportError{Transport: rt.Kind, ExitCode: exitErr.Code, Stderr: exitErr.Stderr}
		}
		return err
	}
	if counted && s.Progress().PercentOr(0) < 100 {
		m.emit(s, progress.NewMeter(s.Source.Size).Record(s.Source.Size))
	}
	return nil
}

// lineHandler logs every raw line and turns rsync output into progress.
// The runner calls it serially, so records keep output order.
func (m *Manager) lineHandler(s *Session, rt models.ResolvedTransport) runner.LineFunc {
	parse := rt.Kind == models.KindRsync
	scrubber := m.log.Scrubber()
	return func(l runner.Line) {
		text := scrubber.Scrub(l.Text)
		m.log.Debug().Str("id", s.ID).Str("stream", string(l.Stream)).Msg(text)
		m.bus.PublishLog(events.DebugLevel, s.ID, string(l.Stream), text)
		if !parse {
			return
		}
		if rec := progress.Parse(text); rec.HasData() {
			m.emit(s, rec)
		}
	}
}

// openFeed opens the local file for an ssh stream copy. Reads are capped
// at the feed's chunk size, paced by the bandwidth limit and counted into
// progress.
func (m *Manager) openFeed(s *Session, feed *command.Feed) (io.Reader, io.Closer, error) {
	f, err := os.Open(feed.Path)
	if err != nil {
		return nil, nil, err
	}
	meter := progress.NewMeter(feed.Size)
	throttle := progress.NewThrottle(m.cfg.ProgressInterval)

	paced := ratelimit.NewReader(s.ctx, &chunkReader{r: f, size: feed.ChunkSize}, ratelimit.NewBandwidthLimiter(feed.BandwidthKbps))
	return &countingReader{r: paced, onRead: func(done int64) {
		if throttle.Allow(done >= feed.Size) {
			m.emit(s, meter.Record(done))
		}
	}}, f, nil
}

type chunkReader struct {
	r    io.Reader
	size int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.size > 0 && len(p) > c.size {
		p = p[:c.size]
	}
	return c.r.Read(p)
}

type countingReader struct {
	r      io.Reader
	n      int64
	onRead func(total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.onRead(c.n)
	}
	return n, err
}

// pollRemoteSize reports scp progress by asking the remote host for the
// size of the file being written. Failed or unparsable polls are skipped;
// the file may not exist yet. The returned func stops polling and waits
// for the poller to exit.
func (m *Manager) pollRemoteSize(s *Session, job command.Job, remotePath string) func() {
	probe := command.SizeProbe(job, remotePath).Command()
	total := s.Source.Size
	meter := progress.NewMeter(total)

	ctx, cancel := context.WithCancel(s.ctx)
	var stopped atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(m.cfg.PollInterval)
		defer t.Stop()

		var last int64 = -1
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			out, err := m.output(ctx, probe)
			if err != nil || stopped.Load() {
				continue
			}
			n, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
			if err != nil || n <= last {
				continue
			}
			last = n
			if n > total {
				n = total
			}
			m.emit(s, meter.Record(n))
		}
	}()
	return func() {
		stopped.Store(true)
		cancel()
		<-done
	}
}
