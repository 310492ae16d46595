// Package events is an in-process publish/subscribe bus for transfer
// lifecycle and progress events. Publishing never blocks: events for a
// subscriber whose buffer is full are dropped and counted.
package events

import (
	"strings"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/progress"
)

// EventType names an event kind. The values appear verbatim in --json output.
type EventType string

const (
	EventLog EventType = "log"

	EventTransferQueued    EventType = "transfer_queued"    // session created
	EventTransferStarted   EventType = "transfer_started"   // transport resolved, process or connection running
	EventTransferProgress  EventType = "transfer_progress"  // progress record
	EventTransferCompleted EventType = "transfer_completed" // exit 0
	EventTransferFailed    EventType = "transfer_failed"    // spawn, transport or connection failure
	EventTransferCancelled EventType = "transfer_cancelled" // cancelled by the caller
)

// Terminal reports whether t ends a session.
func (t EventType) Terminal() bool {
	switch t {
	case EventTransferCompleted, EventTransferFailed, EventTransferCancelled:
		return true
	}
	return false
}

// LogLevel is the severity of a LogEvent.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l LogLevel) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// MarshalText encodes the level by name.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText. Unknown names
// decode as InfoLevel.
func (l *LogLevel) UnmarshalText(b []byte) error {
	*l = InfoLevel
	name := strings.ToLower(string(b))
	for i, n := range levelNames {
		if n == name {
			*l = LogLevel(i)
		}
	}
	return nil
}

// Event is anything that can travel on the bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Header is embedded by every event.
type Header struct {
	EventType EventType `json:"type"`
	Time      time.Time `json:"time"`
}

func (h Header) Type() EventType      { return h.EventType }
func (h Header) Timestamp() time.Time { return h.Time }

func stamp(t EventType) Header {
	return Header{EventType: t, Time: time.Now()}
}

// LogEvent carries one raw transport output line or a session message.
type LogEvent struct {
	Header
	Level   LogLevel `json:"level"`
	TaskID  string   `json:"id,omitempty"`
	Stream  string   `json:"stream,omitempty"` // "stdout" or "stderr" for raw lines
	Message string   `json:"message"`
}

// TransferEvent describes one session's lifecycle step. Record is set for
// progress events; Error for failures.
type TransferEvent struct {
	Header
	TaskID    string           `json:"id"`
	Source    string           `json:"source,omitempty"`
	Dest      string           `json:"dest,omitempty"`
	Transport string           `json:"transport,omitempty"`
	Strategy  string           `json:"strategy,omitempty"`
	Record    *progress.Record `json:"progress,omitempty"`
	Error     string           `json:"error,omitempty"`
}
