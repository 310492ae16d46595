package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/45Drives/studio-share-sub000/internal/progress"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	return nil
}

func drain(ch <-chan Event) []Event {
	var got []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, e)
		default:
			return got
		}
	}
}

func TestProgressEventCarriesRecord(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()
	ch := bus.Subscribe(EventTransferProgress)

	rec := progress.Parse("73.01M 6% 69.59MB/s 0:00:14")
	bus.PublishTransfer(EventTransferProgress, TransferEvent{TaskID: "up-1", Record: &rec})

	ev, ok := recv(t, ch).(*TransferEvent)
	if !ok {
		t.Fatal("want *TransferEvent")
	}
	if ev.TaskID != "up-1" || ev.Record.PercentOr(-1) != 6 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Type() != EventTransferProgress || ev.Timestamp().IsZero() {
		t.Errorf("header = %+v", ev.Header)
	}
}

func TestSubscribeFilters(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Close()

	logs := bus.Subscribe(EventLog)
	ends := bus.Subscribe(EventTransferCompleted, EventTransferFailed)
	all := bus.SubscribeAll()

	bus.PublishLog(InfoLevel, "a", "", "resolved rsync")
	bus.PublishTransfer(EventTransferStarted, TransferEvent{TaskID: "a"})
	bus.PublishTransfer(EventTransferFailed, TransferEvent{TaskID: "a", Error: "Permission denied (publickey)."})

	tests := []struct {
		name string
		ch   <-chan Event
		want []EventType
	}{
		{"log only", logs, []EventType{EventLog}},
		{"terminal pair", ends, []EventType{EventTransferFailed}},
		{"everything", all, []EventType{EventLog, EventTransferStarted, EventTransferFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drain(tt.ch)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Type() != tt.want[i] {
					t.Errorf("event %d = %s, want %s", i, e.Type(), tt.want[i])
				}
			}
		})
	}
}

func TestFullBufferDrops(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()
	ch := bus.Subscribe(EventTransferProgress)

	for i := 0; i < 10; i++ {
		bus.PublishTransfer(EventTransferProgress, TransferEvent{TaskID: "slow"})
	}
	if n := len(drain(ch)); n != 2 {
		t.Errorf("buffered %d, want 2", n)
	}
	if d := bus.Dropped(); d != 8 {
		t.Errorf("dropped %d, want 8", d)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()
	a := bus.SubscribeAll()
	b := bus.SubscribeAll()

	bus.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Error("unsubscribed channel still open")
	}
	bus.PublishTransfer(EventTransferQueued, TransferEvent{TaskID: "q"})
	if got := recv(t, b); got.Type() != EventTransferQueued {
		t.Errorf("remaining subscriber got %s", got.Type())
	}
	bus.Unsubscribe(a)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.Subscribe(EventTransferProgress)
	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
	late := bus.SubscribeAll()
	if _, ok := <-late; ok {
		t.Error("subscription after Close is open")
	}
	bus.PublishTransfer(EventTransferProgress, TransferEvent{})
}

func TestNilBusIsInert(t *testing.T) {
	var bus *EventBus
	bus.PublishTransfer(EventTransferQueued, TransferEvent{TaskID: "x"})
	bus.PublishLog(ErrorLevel, "x", "", "ignored")
	bus.Close()
}

func TestBufferSizeClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultBufferSize},
		{-5, DefaultBufferSize},
		{16, 16},
		{MaxBufferSize * 2, MaxBufferSize},
	}
	for _, tt := range tests {
		if got := NewEventBus(tt.in).size; got != tt.want {
			t.Errorf("NewEventBus(%d).size = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, typ := range []EventType{EventTransferCompleted, EventTransferFailed, EventTransferCancelled} {
		if !typ.Terminal() {
			t.Errorf("%s should be terminal", typ)
		}
	}
	for _, typ := range []EventType{EventLog, EventTransferQueued, EventTransferStarted, EventTransferProgress} {
		if typ.Terminal() {
			t.Errorf("%s should not be terminal", typ)
		}
	}
}

func TestLogLevelText(t *testing.T) {
	tests := []struct {
		level LogLevel
		name  string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
	}
	for _, tt := range tests {
		if tt.level.String() != tt.name {
			t.Errorf("%d.String() = %q", tt.level, tt.level.String())
		}
		var back LogLevel
		if err := back.UnmarshalText([]byte(tt.name)); err != nil || back != tt.level {
			t.Errorf("UnmarshalText(%q) = %v, %v", tt.name, back, err)
		}
	}
	if LogLevel(9).String() != "unknown" {
		t.Error("out of range level should be unknown")
	}

	b, err := json.Marshal(&LogEvent{Header: stamp(EventLog), Level: WarnLevel, Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["level"] != "warn" || m["type"] != "log" {
		t.Errorf("encoded %s", b)
	}
}

func TestTerminalEventWaitsForSlowReader(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()
	ch := bus.SubscribeAll()

	bus.PublishTransfer(EventTransferProgress, TransferEvent{TaskID: "s"})
	bus.PublishTransfer(EventTransferProgress, TransferEvent{TaskID: "s"}) // dropped

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.PublishTransfer(EventTransferCompleted, TransferEvent{TaskID: "s"})
	}()

	time.Sleep(20 * time.Millisecond)
	if got := recv(t, ch); got.Type() != EventTransferProgress {
		t.Fatalf("first = %s", got.Type())
	}
	if got := recv(t, ch); got.Type() != EventTransferCompleted {
		t.Errorf("terminal event lost, got %s", got.Type())
	}
	<-done
	if d := bus.Dropped(); d != 1 {
		t.Errorf("dropped %d, want 1", d)
	}
}

func TestTerminalEventGivesUpOnStuckReader(t *testing.T) {
	bus := NewEventBus(1)
	bus.terminalWait = 10 * time.Millisecond
	defer bus.Close()
	bus.SubscribeAll()
	bus.SubscribeAll()

	bus.PublishTransfer(EventTransferQueued, TransferEvent{TaskID: "s"})
	start := time.Now()
	bus.PublishTransfer(EventTransferFailed, TransferEvent{TaskID: "s"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("publish blocked for %v", elapsed)
	}
	if d := bus.Dropped(); d != 2 {
		t.Errorf("dropped %d, want 2", d)
	}
}
