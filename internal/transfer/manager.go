package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/45Drives/studio-share-sub000/internal/command"
	"github.com/45Drives/studio-share-sub000/internal/events"
	"github.com/45Drives/studio-share-sub000/internal/logging"
	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/pathutil"
	"github.com/45Drives/studio-share-sub000/internal/progress"
	"github.com/45Drives/studio-share-sub000/internal/remote"
	"github.com/45Drives/studio-share-sub000/internal/runner"
)

const (
	// DefaultMaxConcurrent bounds sessions running at once.
	DefaultMaxConcurrent = 4
	// DefaultPollInterval is the remote size poll period for scp.
	DefaultPollInterval = 400 * time.Millisecond
	// DefaultProgressInterval coalesces byte-counted progress.
	DefaultProgressInterval = 90 * time.Millisecond
)

// Resolver picks the transport for a platform. *resolve.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, p models.Platform) models.ResolvedTransport
}

// Process is a started transport process. *runner.Process implements it.
type Process interface {
	Wait() error
	Kill()
}

// StartFunc launches a command. The default is runner.Start.
type StartFunc func(ctx context.Context, c runner.Command, onLine runner.LineFunc) (Process, error)

// OutputFunc runs a one-shot command. The default is runner.Output.
type OutputFunc func(ctx context.Context, c runner.Command) ([]byte, error)

// SFTPConn is an open SFTP session. *remote.Conn implements it.
type SFTPConn interface {
	FS() remote.FS
	Close() error
}

// DialFunc opens an SFTP session. The default is remote.Dial.
type DialFunc func(ctx context.Context, cfg remote.DialConfig) (SFTPConn, error)

// Config holds the settings shared by every session of a Manager.
type Config struct {
	Platform models.Platform
	// KnownHosts is used when a request has no KnownHostsPath; empty means
	// ~/.ssh/known_hosts.
	KnownHosts    string
	SSH           command.SSHOptions
	MaxConcurrent int
	// AutoStream sends single files over ssh-stream when resolution fell
	// back to scp. Directories stay on scp -r unless the destination needs
	// shell quoting, in which case they go over SFTP.
	AutoStream bool
	// TempDir holds wrapper scripts; empty means the system default.
	TempDir          string
	PollInterval     time.Duration
	ProgressInterval time.Duration
}

// DefaultConfig returns the stock configuration for the running platform.
func DefaultConfig(p models.Platform) Config {
	return Config{
		Platform:         p,
		SSH:              command.DefaultSSHOptions(),
		MaxConcurrent:    DefaultMaxConcurrent,
		AutoStream:       true,
		PollInterval:     DefaultPollInterval,
		ProgressInterval: DefaultProgressInterval,
	}
}

// Stats counts sessions per state.
type Stats struct {
	Created   int
	Resolving int
	Running   int
	Succeeded int
	Failed    int
	Canceled  int
}

// Total returns the number of tracked sessions.
func (s Stats) Total() int {
	return s.Created + s.Resolving + s.Running + s.Succeeded + s.Failed + s.Canceled
}

// Manager starts, tracks and cancels transfer sessions. Sessions run
// concurrently and independently, at most MaxConcurrent at a time.
type Manager struct {
	resolver Resolver
	cfg      Config
	log      *logging.Logger
	bus      *events.EventBus
	start    StartFunc
	output   OutputFunc
	dial     DialFunc

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.RWMutex
	sessions []*Session
	byID     map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Raw transport lines are logged at debug.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithEventBus publishes lifecycle, progress and raw line events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithStarter replaces process launching.
func WithStarter(fn StartFunc) Option {
	return func(m *Manager) { m.start = fn }
}

// WithOutput replaces one-shot command execution.
func WithOutput(fn OutputFunc) Option {
	return func(m *Manager) { m.output = fn }
}

// WithDialer replaces SFTP dialing.
func WithDialer(fn DialFunc) Option {
	return func(m *Manager) { m.dial = fn }
}

// NewManager creates a Manager.
func NewManager(resolver Resolver, cfg Config, opts ...Option) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.SSH == (command.SSHOptions{}) {
		cfg.SSH = command.DefaultSSHOptions()
	}
	m := &Manager{
		resolver: resolver,
		cfg:      cfg,
		log:      logging.Nop(),
		start:    startProcess,
		output:   runner.Output,
		dial:     dialSFTP,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		byID:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func startProcess(ctx context.Context, c runner.Command, onLine runner.LineFunc) (Process, error) {
	p, err := runner.Start(ctx, c, onLine)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func dialSFTP(ctx context.Context, cfg remote.DialConfig) (SFTPConn, error) {
	c, err := remote.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// StartTransfer validates req and starts a session for it. An empty
// req.ID is replaced by a generated one. Validation failures are returned
// directly and create no session; every later failure is reported through
// obs.OnComplete. Cancelling ctx cancels the session.
func (m *Manager) StartTransfer(ctx context.Context, req models.TransferRequest, obs Observer) (*Session, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	src, err := Validate(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if old, ok := m.byID[req.ID]; ok && !old.State().IsTerminal() {
		m.mu.Unlock()
		return nil, &ValidationError{Field: "id", Reason: fmt.Sprintf("session %s is still active", req.ID)}
	}
	s := newSession(ctx, req.ID, req, src, obs)
	m.sessions = append(m.sessions, s)
	m.byID[s.ID] = s
	m.mu.Unlock()

	m.log.Info().Str("id", s.ID).Str("source", req.Source).Str("dest", req.RemoteSpec()).Msg("transfer queued")
	m.bus.PublishTransfer(events.EventTransferQueued, m.eventFor(s))

	m.wg.Add(1)
	go m.run(s)
	return s, nil
}

// CancelTransfer cancels the session with id. Cancelling a finished
// session, or cancelling twice, is a no-op.
func (m *Manager) CancelTransfer(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.Cancel() {
		m.log.Info().Str("id", id).Msg("cancel requested")
	}
	return nil
}

// CancelAll cancels every non-terminal session.
func (m *Manager) CancelAll() {
	m.mu.RLock()
	sessions := append([]*Session(nil), m.sessions...)
	m.mu.RUnlock()
	for _, s := range sessions {
		s.Cancel()
	}
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	return s, ok
}

// Sessions returns snapshots of all tracked sessions in creation order.
func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Stats counts tracked sessions per state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st Stats
	for _, s := range m.sessions {
		switch s.State() {
		case StateCreated:
			st.Created++
		case StateResolving:
			st.Resolving++
		case StateRunning:
			st.Running++
		case StateSucceeded:
			st.Succeeded++
		case StateFailed:
			st.Failed++
		case StateCanceled:
			st.Canceled++
		}
	}
	return st
}

// ClearFinished forgets terminal sessions.
func (m *Manager) ClearFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.State().IsTerminal() {
			delete(m.byID, s.ID)
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
}

// Wait blocks until every started session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(s *Session) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
	case <-s.ctx.Done():
		m.complete(s, s.ctx.Err())
		return
	}
	defer func() { <-m.sem }()

	if !s.transition(StateResolving) {
		return
	}
	rt := m.choose(m.resolver.Resolve(s.ctx, m.cfg.Platform), s.Request, s.Source)
	s.setTransport(rt)
	m.log.Debug().Str("id", s.ID).Str("kind", string(rt.Kind)).Str("executable", rt.Executable).
		Str("host", string(rt.Host)).Bool("rich_progress", rt.SupportsRichProgress).Msg("transport resolved")

	var err error
	if rt.Kind == models.KindSFTP {
		err = m.runSFTP(s)
	} else {
		err = m.runCommand(s, rt)
	}
	m.complete(s, err)
}

// choose applies the scp policy. Single files go as an atomic ssh stream
// copy when AutoStream is set. A destination scp might split in the remote
// shell always avoids scp: files go over ssh-stream, directories over SFTP.
func (m *Manager) choose(rt models.ResolvedTransport, req models.TransferRequest, src models.SourceInfo) models.ResolvedTransport {
	if rt.Kind != models.KindSCP {
		return rt
	}
	unsafe := command.NeedsRemoteQuoting(req.RemoteDir())
	switch {
	case !src.IsDir && (m.cfg.AutoStream || unsafe):
		rt.Kind = models.KindSSHStream
		rt.Executable = rt.SSHExecutable
	case src.IsDir && unsafe:
		m.log.Info().Str("dest", req.RemoteDir()).Msg("destination needs quoting, uploading directory over sftp")
		rt.Kind = models.KindSFTP
		rt.Executable = ""
	}
	return rt
}

func (m *Manager) knownHosts(req models.TransferRequest) string {
	if req.KnownHostsPath != "" {
		return req.KnownHostsPath
	}
	if m.cfg.KnownHosts != "" {
		return m.cfg.KnownHosts
	}
	return pathutil.DefaultKnownHostsPath(nil)
}

func (m *Manager) emit(s *Session, rec progress.Record) {
	if !s.emit(rec) {
		return
	}
	ev := m.eventFor(s)
	ev.Record = &rec
	m.bus.PublishTransfer(events.EventTransferProgress, ev)
}

func (m *Manager) started(s *Session) {
	m.log.Info().Str("id", s.ID).Str("transport", string(s.Transport().Kind)).Str("strategy", s.Strategy()).Msg("transfer started")
	m.bus.PublishTransfer(events.EventTransferStarted, m.eventFor(s))
}

// complete turns the run outcome into the session's terminal result.
func (m *Manager) complete(s *Session, err error) {
	var res Result
	switch {
	case err == nil:
		res = Result{OK: true, State: StateSucceeded}
	case s.canceled():
		res = Result{State: StateCanceled, Error: "canceled", Err: context.Canceled}
	default:
		res = Result{State: StateFailed, Error: err.Error(), Err: err}
	}
	if !s.finish(res) {
		return
	}

	ev := m.eventFor(s)
	switch res.State {
	case StateSucceeded:
		m.log.Info().Str("id", s.ID).Msg("transfer completed")
		m.bus.PublishTransfer(events.EventTransferCompleted, ev)
	case StateCanceled:
		m.log.Info().Str("id", s.ID).Msg("transfer canceled")
		m.bus.PublishTransfer(events.EventTransferCancelled, ev)
	default:
		e := m.log.Error().Str("id", s.ID).Err(err)
		var spawn *SpawnError
		if errors.As(err, &spawn) {
			e = e.Str("hint", spawn.Hint())
		}
		e.Msg("transfer failed")
		ev.Error = res.Error
		m.bus.PublishTransfer(events.EventTransferFailed, ev)
	}
}

func (m *Manager) eventFor(s *Session) events.TransferEvent {
	return events.TransferEvent{
		TaskID:    s.ID,
		Source:    s.Request.Source,
		Dest:      s.Request.RemoteSpec(),
		Transport: string(s.Transport().Kind),
		Strategy:  s.Strategy(),
	}
}
