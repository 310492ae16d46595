// Package transfer runs transfer sessions: one request, one transport
// process or SFTP connection, one terminal result. The Manager is the
// entry point for the orchestrating layer.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/progress"
)

// State is a session lifecycle state.
type State string

const (
	StateCreated   State = "created"   // accepted, waiting for a slot
	StateResolving State = "resolving" // picking transport and building the command
	StateRunning   State = "running"   // process or connection active
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Result is the terminal outcome delivered exactly once per session.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	State State  `json:"state"`
	Err   error  `json:"-"`
}

// Observer receives a session's progress records in output order and then
// its result. Either callback may be nil. No progress is delivered after
// OnComplete.
type Observer struct {
	OnProgress func(progress.Record)
	OnComplete func(Result)
}

// Session is one logical transfer.
type Session struct {
	ID        string
	Request   models.TransferRequest
	Source    models.SourceInfo
	CreatedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// emitMu orders observer callbacks; mu guards the fields below.
	emitMu sync.Mutex
	mu     sync.Mutex

	state           State
	transport       models.ResolvedTransport
	strategy        string
	last            progress.Record
	result          Result
	startedAt       time.Time
	finishedAt      time.Time
	cancelRequested bool

	observer Observer
	done     chan struct{}
}

func newSession(ctx context.Context, id string, req models.TransferRequest, src models.SourceInfo, obs Observer) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:        id,
		Request:   req,
		Source:    src,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateCreated,
		observer:  obs,
		done:      make(chan struct{}),
	}
}

var transitions = map[State][]State{
	StateCreated:   {StateResolving, StateFailed, StateCanceled},
	StateResolving: {StateRunning, StateFailed, StateCanceled},
	StateRunning:   {StateSucceeded, StateFailed, StateCanceled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves to a non-terminal state. Terminal states are entered
// only through finish.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return false
	}
	s.state = to
	if to == StateRunning {
		s.startedAt = time.Now()
	}
	return true
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transport returns the resolved transport, zero before resolution.
func (s *Session) Transport() models.ResolvedTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Session) setTransport(rt models.ResolvedTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = rt
}

// Strategy returns the command strategy name, empty for SFTP.
func (s *Session) Strategy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

func (s *Session) setStrategy(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = name
}

// Progress returns the last emitted record.
func (s *Session) Progress() progress.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Done is closed after the result was delivered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the terminal result, or false while still running.
func (s *Session) Result() (Result, bool) {
	select {
	case <-s.done:
	default:
		return Result{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, true
}

// Wait blocks until the session is terminal or ctx ends.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		r, _ := s.Result()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel asks the session to stop. It returns false, and does nothing,
// when the session is already terminal or a cancel is already pending.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state.IsTerminal() || s.cancelRequested {
		s.mu.Unlock()
		return false
	}
	s.cancelRequested = true
	s.mu.Unlock()

	s.cancel()
	return true
}

func (s *Session) canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested || s.ctx.Err() != nil
}

// emit delivers rec unless the session is already terminal.
func (s *Session) emit(rec progress.Record) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	s.last = rec
	s.mu.Unlock()

	if s.observer.OnProgress != nil {
		s.observer.OnProgress(rec)
	}
	return true
}

// finish enters the terminal state of res and delivers it. Only the first
// call has any effect.
func (s *Session) finish(res Result) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	s.state = res.State
	s.result = res
	s.finishedAt = time.Now()
	s.mu.Unlock()

	s.cancel()
	if s.observer.OnComplete != nil {
		s.observer.OnComplete(res)
	}
	close(s.done)
	return true
}

// Info is a point-in-time copy of a session for listing and history.
type Info struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	Destination string                 `json:"destination"`
	Transport   models.TransportKind   `json:"transport,omitempty"`
	Strategy    string                 `json:"strategy,omitempty"`
	State       State                  `json:"state"`
	Progress    progress.Record        `json:"progress"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	StartedAt   time.Time              `json:"startedAt"`
	FinishedAt  time.Time              `json:"finishedAt"`
	Bytes       int64                  `json:"bytes"`
	Request     models.TransferRequest `json:"request"`
}

// Duration returns the running time, zero if the session never ran.
func (i Info) Duration() time.Duration {
	if i.StartedAt.IsZero() || i.FinishedAt.IsZero() {
		return 0
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

// Snapshot returns a copy of the session's current state.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	bytes := s.last.BytesOr(0)
	if s.state == StateSucceeded && !s.Source.IsDir {
		bytes = s.Source.Size
	}
	return Info{
		ID:          s.ID,
		Source:      s.Request.Source,
		Destination: s.Request.RemoteSpec(),
		Transport:   s.transport.Kind,
		Strategy:    s.strategy,
		State:       s.state,
		Progress:    s.last,
		Error:       s.result.Error,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.startedAt,
		FinishedAt:  s.finishedAt,
		Bytes:       bytes,
		Request:     s.Request,
	}
}
