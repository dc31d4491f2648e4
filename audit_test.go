package sessionguard

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when audit disabled")
	}

	// Nil dispatcher is inert.
	d.Emit(context.Background(), AuditEvent{EventType: auditEventSessionCreated})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected nil dispatcher to report zero drops")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventSessionCreated})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected all 10 events delivered before Close returned, got %d", got)
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the sink, second fills the buffer, the rest drop.
	for i := 0; i < 6; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventSessionCreated})
	}

	deadline := time.After(time.Second)
	for d.Dropped() < 4 {
		select {
		case <-deadline:
			t.Fatalf("expected 4 dropped events, got %d", d.Dropped())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: auditEventSessionCreated})
	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestChannelSink(t *testing.T) {
	sink := NewChannelSink(4)
	event := AuditEvent{EventType: auditEventSessionRotated, UserID: 42}
	sink.Emit(context.Background(), event)

	select {
	case got := <-sink.Events():
		if got.EventType != auditEventSessionRotated || got.UserID != 42 {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event on channel")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		EventType:     auditEventHijackSuspected,
		UserID:        7,
		TokenFragment: "deadbeef",
		Success:       false,
		Error:         "session hijack suspected",
	})

	line := strings.TrimSpace(buf.String())
	var decoded AuditEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("expected one JSON object per line, got %q: %v", line, err)
	}
	if decoded.EventType != auditEventHijackSuspected || decoded.TokenFragment != "deadbeef" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}
