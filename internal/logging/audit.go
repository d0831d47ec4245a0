package logging

import (
	"time"

	"go.uber.org/zap"
)

// AuditEventType names a bot lifecycle or conversation event.
type AuditEventType string

const (
	// Session lifecycle
	AuditSessionStart  AuditEventType = "session_start"
	AuditSessionEnd    AuditEventType = "session_end"
	AuditSessionDead   AuditEventType = "session_dead"
	AuditReconnect     AuditEventType = "reconnect"
	AuditAuthArtifact  AuditEventType = "auth_artifact"
	AuditConnectFailed AuditEventType = "connect_failed"

	// Conversation handling
	AuditMessageReceived AuditEventType = "message_received"
	AuditCommand         AuditEventType = "command_dispatch"
	AuditReplySent       AuditEventType = "reply_sent"
	AuditReplyFailed     AuditEventType = "reply_failed"

	// Ledger mutations
	AuditLedgerWrite AuditEventType = "ledger_write"
)

// AuditEvent is one structured entry in the audit trail.
type AuditEvent struct {
	EventType  AuditEventType
	SessionID  string
	Command    string
	Target     string
	Success    bool
	DurationMs int64
	Error      string
	Message    string
	Fields     map[string]interface{}
}

// AuditLogger writes audit events through the audit category.
type AuditLogger struct {
	sessionID string
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithSession returns an audit logger scoped to a session.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsCategoryEnabled(CategoryAudit) {
		return
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.Bool("success", event.Success),
		zap.Int64("ts", time.Now().UnixMilli()),
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session", event.SessionID))
	}
	if event.Command != "" {
		fields = append(fields, zap.String("command", event.Command))
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", event.DurationMs))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Fields {
		fields = append(fields, zap.Any(k, v))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	Get(CategoryAudit).Zap().Info(msg, fields...)
}

// SessionStarted records a successful connect.
func (a *AuditLogger) SessionStarted(workDir string) {
	a.Log(AuditEvent{EventType: AuditSessionStart, Target: workDir, Success: true})
}

// SessionEnded records a cleanup.
func (a *AuditLogger) SessionEnded(err error) {
	ev := AuditEvent{EventType: AuditSessionEnd, Success: err == nil}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// CommandDispatched records a handled command.
func (a *AuditLogger) CommandDispatched(command string, success bool, duration time.Duration) {
	a.Log(AuditEvent{
		EventType:  AuditCommand,
		Command:    command,
		Success:    success,
		DurationMs: duration.Milliseconds(),
	})
}

// ReplyResult records the outcome of a reply delivery.
func (a *AuditLogger) ReplyResult(err error) {
	if err == nil {
		a.Log(AuditEvent{EventType: AuditReplySent, Success: true})
		return
	}
	a.Log(AuditEvent{EventType: AuditReplyFailed, Error: err.Error()})
}
