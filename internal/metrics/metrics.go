// Package metrics exposes Prometheus collectors for the bot loop. All methods
// are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kasbot"

// Metrics groups the bot's collectors.
type Metrics struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	messages        prometheus.Counter
	commands        *prometheus.CounterVec
	replies         *prometheus.CounterVec
	connectAttempts *prometheus.CounterVec
	reconnects      prometheus.Counter
	sessionState    prometheus.Gauge
	sessionErrors   prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of poll cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Incoming messages extracted and handed to the dispatcher.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by canonical name.",
		}, []string{"command"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Reply deliveries by outcome.",
		}, []string{"result"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Session connect attempts by outcome.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Full reconnects after session death.",
		}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0 uninitialized, 1 connecting, 2 awaiting auth, 3 authenticated, 4 dead).",
		}),
		sessionErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_errors",
			Help:      "Failures accumulated by the current session.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.cycles, m.cycleDuration, m.messages, m.commands, m.replies,
			m.connectAttempts, m.reconnects, m.sessionState, m.sessionErrors,
		)
	}
	return m
}

// ObserveCycle records one poll cycle.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// MessageProcessed counts one extracted message.
func (m *Metrics) MessageProcessed() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

// CommandHandled counts one dispatched command.
func (m *Metrics) CommandHandled(command string) {
	if m == nil {
		return
	}
	if command == "" {
		command = "none"
	}
	m.commands.WithLabelValues(command).Inc()
}

// ReplyResult counts one reply delivery.
func (m *Metrics) ReplyResult(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.replies.WithLabelValues(result).Inc()
}

// ConnectAttempt counts one connect attempt.
func (m *Metrics) ConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

// Reconnect counts one full reconnect.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// SetSessionState publishes the numeric session state.
func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

// SetSessionErrors publishes the session-level error count.
func (m *Metrics) SetSessionErrors(n int) {
	if m == nil {
		return
	}
	m.sessionErrors.Set(float64(n))
}
