package sessionguard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the Service. Events carry a token fragment,
// never a full token.
const (
	auditEventSessionCreated     = "session_created"
	auditEventSessionDestroyed   = "session_destroyed"
	auditEventSessionEvicted     = "session_evicted"
	auditEventSessionsRevoked    = "sessions_revoked"
	auditEventSessionRotated     = "session_rotated"
	auditEventPrivilegeEscalated = "privilege_escalated"
	auditEventIPAddressChanged   = "ip_address_changed"
	auditEventHijackSuspected    = "hijack_suspected"
)

// AuditEvent is the structured security event record handed to an [AuditSink].
type AuditEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	UserID        int64             `json:"user_id,omitempty"`
	TokenFragment string            `json:"token_fragment,omitempty"`
	IP            string            `json:"ip,omitempty"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives emitted audit events.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
