package transfer

import (
	"context"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/progress"
	"github.com/45Drives/studio-share-sub000/internal/remote"
)

// runSFTP drives the library transport. Progress comes from byte counts
// instead of parsed output. Cancelling closes the connection, which
// aborts the in-flight request.
func (m *Manager) runSFTP(s *Session) error {
	req := s.Request
	cfg := remote.DialConfig{
		Host:              req.DestinationHost,
		Port:              req.EffectivePort(),
		User:              req.DestinationUser,
		IdentityPath:      req.IdentityPath,
		KnownHostsPath:    m.knownHosts(req),
		ConnectTimeout:    secondsOf(m.cfg.SSH.ConnectTimeout),
		KeepAliveInterval: secondsOf(m.cfg.SSH.ServerAliveInterval),
		KeepAliveMax:      m.cfg.SSH.ServerAliveCountMax,
	}
	conn, err := m.dial(s.ctx, cfg)
	if err != nil {
		if cerr := s.ctx.Err(); cerr != nil {
			return cerr
		}
		return &ConnectionError{Host: req.DestinationHost, Err: err}
	}
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	if !s.transition(StateRunning) {
		return context.Canceled
	}
	m.started(s)

	var meter *progress.Meter
	throttle := progress.NewThrottle(m.cfg.ProgressInterval)
	up := &remote.Uploader{
		FS:            conn.FS(),
		BandwidthKbps: req.BandwidthLimitKbps,
		Logger:        m.log.Child("id", s.ID),
	}
	return up.Upload(s.ctx, s.Source, req.RemoteDir(), func(done, total int64) {
		if meter == nil {
			meter = progress.NewMeter(total)
		}
		if throttle.Allow(done == total) {
			m.emit(s, meter.Record(done))
		}
	})
}

func secondsOf(n int) time.Duration {
	return time.Duration(n) * time.Second
}
