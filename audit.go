package authflow

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one structured audit record emitted by a [Controller].
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the controller's dispatcher.
// Emit runs on the dispatcher goroutine, never under the controller lock.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that writes events to a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

const (
	auditEventCredentialsSubmitted = "flow.credentials_submitted"
	auditEventSecondFactorRequired = "flow.second_factor_required"
	auditEventSecondFactorSubmit   = "flow.second_factor_submitted"
	auditEventAuthenticated        = "flow.authenticated"
	auditEventCredentialsRejected  = "flow.credentials_rejected"
	auditEventSecondFactorRejected = "flow.second_factor_rejected"
	auditEventCancelled            = "flow.cancelled"
	auditEventResponseDiscarded    = "flow.response_discarded"
	auditEventLogout               = "flow.logout"
)

func (c *Controller) emitAudit(ctx context.Context, eventType string, success bool, snap Snapshot, reason string, metadata func() map[string]string) {
	if c == nil || c.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		FlowID:    c.id,
		Username:  snap.Credentials.Username,
		State:     snap.State.String(),
		Success:   success,
		Reason:    reason,
	}
	switch {
	case snap.Challenge != nil:
		event.UserID = snap.Challenge.UserID
	case snap.Session != nil:
		event.UserID = snap.Session.User.ID
		if event.Username == "" {
			event.Username = snap.Session.User.Username
		}
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	if deviceID := DeviceIDFromContext(ctx); deviceID != "" {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, 1)
		}
		event.Metadata["device_id"] = deviceID
	}

	c.audit.Emit(ctx, event)
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (c *Controller) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}
