// Package ledger records transactions and savings goals in SQLite.
package ledger

import (
	"fmt"
	"time"
)

// Kind is the direction of a transaction.
type Kind string

const (
	Expense Kind = "expense"
	Income  Kind = "income"
)

// ParseKind validates s as a transaction kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Expense, Income:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown transaction kind %q", s)
}

// SavingsShare is the part of every income moved into unfinished goals.
const SavingsShare = 0.2

// Transaction is one recorded movement of money.
type Transaction struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"type"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary aggregates the current calendar month.
type Summary struct {
	Year       int                `json:"year"`
	Month      time.Month         `json:"month"`
	Income     float64            `json:"monthly_income"`
	Expenses   float64            `json:"monthly_expenses"`
	Savings    float64            `json:"savings"`
	Categories map[string]float64 `json:"expense_categories"`
}

// SavingsRate returns savings as a percentage of income, or 0 without income.
func (s Summary) SavingsRate() float64 {
	if s.Income <= 0 {
		return 0
	}
	return s.Savings / s.Income * 100
}

// Goal is a savings target funded from income.
type Goal struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Target   float64 `json:"target_amount"`
	Current  float64 `json:"current_amount"`
	Deadline string  `json:"deadline,omitempty"`
}

// Progress returns completion as a percentage.
func (g Goal) Progress() float64 {
	if g.Target <= 0 {
		return 0
	}
	return g.Current / g.Target * 100
}

// Done reports whether the target has been reached.
func (g Goal) Done() bool {
	return g.Current >= g.Target
}
