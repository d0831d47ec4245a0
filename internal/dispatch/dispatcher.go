package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasbot/internal/i18n"
	"kasbot/internal/ledger"
	"kasbot/internal/logging"
	"kasbot/internal/metrics"
)

// Ledger is the subset of the ledger the handlers use.
type Ledger interface {
	RecordTransaction(ctx context.Context, kind ledger.Kind, amount float64, category, description string) (ledger.Transaction, error)
	Balance(ctx context.Context) (float64, error)
	MonthlySummary(ctx context.Context) (ledger.Summary, error)
	AddSavingsGoal(ctx context.Context, name string, target float64, deadline string) (ledger.Goal, error)
	SavingsGoals(ctx context.Context) ([]ledger.Goal, error)
}

// CatalogSource supplies the active catalog. *i18n.Store implements it.
type CatalogSource interface {
	Catalog() *i18n.Catalog
}

type handlerFunc func(ctx context.Context, cat *i18n.Catalog, args []string) (string, error)

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher routes commands to handlers. It never returns an error: every
// failure becomes a localized reply.
type Dispatcher struct {
	ledger   Ledger
	catalogs CatalogSource
	metrics  *metrics.Metrics
	handlers map[string]handlerFunc
}

// New creates a dispatcher backed by l.
func New(l Ledger, catalogs CatalogSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{ledger: l, catalogs: catalogs}
	d.handlers = map[string]handlerFunc{
		CmdExpense: d.handleExpense,
		CmdIncome:  d.handleIncome,
		CmdBalance: d.handleBalance,
		CmdReport:  d.handleReport,
		CmdHelp:    d.handleHelp,
		CmdPlan:    d.handlePlan,
		CmdInvest:  d.handleInvest,
		CmdGoal:    d.handleGoal,
		CmdBudget:  d.handleBudget,
		CmdMarket:  d.handleMarket,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Commands lists the commands with a handler.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	return out
}

// Translate maps text onto a command using the active catalog.
func (d *Dispatcher) Translate(text string) Command {
	return Translate(d.catalogs.Catalog(), text)
}

// Handle translates and dispatches text.
func (d *Dispatcher) Handle(ctx context.Context, text string) string {
	return d.Dispatch(ctx, d.Translate(text))
}

// Dispatch runs cmd and returns the reply. Unknown commands get the help
// text; validation failures get their own message; anything else gets the
// generic error message.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) string {
	cat := d.catalogs.Catalog()
	start := time.Now()

	h, ok := d.handlers[cmd.Name]
	if !ok {
		logging.DispatchDebug("no command recognised, replying with help")
		d.metrics.CommandHandled("")
		return cat.Message(i18n.MsgHelp)
	}

	reply, err := d.invoke(ctx, h, cat, cmd)
	dur := time.Since(start)
	d.metrics.CommandHandled(cmd.Name)
	logging.Audit().CommandDispatched(cmd.Name, err == nil, dur)

	if err == nil {
		logging.DispatchDebug("%s handled in %v", cmd.Name, dur)
		return reply
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		logging.DispatchDebug("%s rejected: %v", cmd.Name, verr)
		if verr.Reply != "" {
			return verr.Reply
		}
		return cat.Message(i18n.MsgErrorGeneric)
	}
	logging.DispatchError("%v", err)
	return cat.Message(i18n.MsgErrorGeneric)
}

// invoke calls h, converting panics and plain errors into HandlerError.
func (d *Dispatcher) invoke(ctx context.Context, h handlerFunc, cat *i18n.Catalog, cmd Command) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Command: cmd.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	reply, err = h(ctx, cat, cmd.Args)
	if err == nil {
		return reply, nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "", err
	}
	return "", &HandlerError{Command: cmd.Name, Err: err}
}
