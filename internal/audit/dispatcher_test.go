package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink exploded") }

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &recordingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.SinkFailures() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherPreservesOrderAndFlushesOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	want := []string{"flow.credentials_submitted", "flow.second_factor_required", "flow.authenticated"}
	for _, typ := range want {
		d.Emit(context.Background(), Event{EventType: typ})
	}
	d.Close()

	got := sink.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}

	d.Emit(context.Background(), Event{EventType: "late"})
	if len(sink.types()) != len(want) {
		t.Fatal("events emitted after Close must be ignored")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zap.New(core)}, sink)

	// The worker holds one event inside the blocked sink and one sits in
	// the buffer; everything after is dropped.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "flow.cancelled"})
	}
	deadline := time.Now().Add(time.Second)
	for d.Dropped() < 8 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(sink.block)
	d.Close()

	if d.Dropped() < 8 {
		t.Fatalf("expected at least 8 drops, got %d", d.Dropped())
	}
	if logs.FilterMessage("audit buffer full, dropping events").Len() == 0 {
		t.Fatal("expected a drop warning")
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.block)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "a"})
	deadline := time.Now().Add(time.Second)
	for len(d.queue) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// "a" is held by the blocked sink, "b" fills the buffer.
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: "c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit did not return after its context ended")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected the timed-out emit to count as dropped, got %d", d.Dropped())
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: zap.New(core)}, panicSink{})

	d.Emit(context.Background(), Event{EventType: "flow.logout", FlowID: "f1"})
	d.Emit(context.Background(), Event{EventType: "flow.logout", FlowID: "f1"})
	d.Close()

	if d.SinkFailures() != 2 {
		t.Fatalf("expected 2 sink failures, got %d", d.SinkFailures())
	}
	entries := logs.FilterMessage("audit sink panicked").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 panic logs, got %d", len(entries))
	}
	if entries[0].ContextMap()["panic"] != "sink exploded" {
		t.Fatalf("unexpected panic field: %v", entries[0].ContextMap())
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "flow.authenticated", FlowID: "f1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "flow.logout", FlowID: "f1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if decoded.EventType != "flow.authenticated" || decoded.FlowID != "f1" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}
