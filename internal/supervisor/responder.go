package supervisor

import (
	"context"
	"errors"
	"time"

	"kasbot/internal/logging"
	"kasbot/internal/metrics"
	"kasbot/internal/poller"
	"kasbot/internal/sender"
	"kasbot/internal/session"
)

// Replier turns message text into a reply. *dispatch.Dispatcher implements it.
type Replier interface {
	Handle(ctx context.Context, text string) string
}

// ReplySender delivers a reply. *sender.Sender implements it.
type ReplySender interface {
	Send(ctx context.Context, sess *session.Session, text string) error
}

// Responder answers each extracted message: dispatch, then send.
type Responder struct {
	replier Replier
	sender  ReplySender
	metrics *metrics.Metrics
}

var _ poller.Handler = (*Responder)(nil)

// NewResponder wires a replier to a sender.
func NewResponder(r Replier, s ReplySender, m *metrics.Metrics) *Responder {
	return &Responder{replier: r, sender: s, metrics: m}
}

// HandleMessage implements poller.Handler. An undeliverable reply is logged
// and dropped; a dead session is reported to the poller.
func (r *Responder) HandleMessage(ctx context.Context, sess *session.Session, msg poller.IncomingMessage) error {
	audit := logging.AuditWithSession(sess.ID)
	audit.Log(logging.AuditEvent{
		EventType: logging.AuditMessageReceived,
		Success:   true,
		Fields:    map[string]interface{}{"chars": len(msg.Text)},
	})

	start := time.Now()
	reply := r.replier.Handle(ctx, msg.Text)
	logging.DispatchDebug("reply ready in %v (%d chars)", time.Since(start), len(reply))

	err := r.sender.Send(ctx, sess, reply)
	r.metrics.ReplyResult(err == nil)
	audit.ReplyResult(err)

	var sendErr *sender.SendFailureError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionDead):
		return err
	case errors.As(err, &sendErr):
		logging.SenderWarn("dropping reply: %v", sendErr)
		return nil
	default:
		return err
	}
}
