// Package dispatch turns free-text chat messages into commands and runs them
// against the ledger, always producing a reply.
package dispatch

import (
	"strings"

	"kasbot/internal/i18n"
)

// Canonical command names.
const (
	CmdExpense = "expense"
	CmdIncome  = "income"
	CmdBalance = "balance"
	CmdReport  = "report"
	CmdHelp    = "help"
	CmdPlan    = "plan"
	CmdInvest  = "invest"
	CmdGoal    = "goal"
	CmdBudget  = "budget"
	CmdMarket  = "market"
)

// Command is a translated message. The zero Command means no command was
// recognised.
type Command struct {
	Name string
	Args []string
}

// IsNone reports whether no command was recognised.
func (c Command) IsNone() bool { return c.Name == "" }

// Translate maps text onto a canonical command. The first token selects the
// command. For expense and income the second argument is replaced by its
// canonical category when the catalog knows it. Other tokens pass through.
func Translate(cat *i18n.Catalog, text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}
	}
	name, ok := cat.Commands.Lookup(strings.ToLower(fields[0]))
	if !ok {
		return Command{}
	}

	args := append([]string{}, fields[1:]...)
	if len(args) >= 2 && (name == CmdExpense || name == CmdIncome) {
		if category, ok := cat.Category(name, args[1]); ok {
			args[1] = category
		}
	}
	return Command{Name: name, Args: args}
}
