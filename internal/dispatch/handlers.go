package dispatch

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"kasbot/internal/i18n"
	"kasbot/internal/ledger"
)

// Advisory thresholds.
const (
	EmergencyFundMonths    = 6
	RecommendedSavingsRate = 0.20
	MaxExpenseRatio        = 0.80
	FoodShareLimit         = 0.30
	EntertainmentLimit     = 0.20
	InvestmentThreshold    = 10_000_000
	DefaultGoalPeriods     = 6
)

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (d *Dispatcher) handleExpense(ctx context.Context, cat *i18n.Catalog, args []string) (string, error) {
	return d.record(ctx, cat, ledger.Expense, i18n.MsgExpenseRecorded, args)
}

func (d *Dispatcher) handleIncome(ctx context.Context, cat *i18n.Catalog, args []string) (string, error) {
	return d.record(ctx, cat, ledger.Income, i18n.MsgIncomeRecorded, args)
}

func (d *Dispatcher) record(ctx context.Context, cat *i18n.Catalog, kind ledger.Kind, msgKey string, args []string) (string, error) {
	raw := arg(args, 0)
	amount, ok := parseAmount(raw)
	if !ok {
		return "", &ValidationError{Field: "amount", Value: raw, Reply: cat.Message(i18n.MsgInvalidAmount)}
	}
	category := arg(args, 1)
	if category == "" {
		category = "other"
	}
	var desc string
	if len(args) > 2 {
		desc = strings.Join(args[2:], " ")
	}

	tx, err := d.ledger.RecordTransaction(ctx, kind, amount, category, desc)
	if err != nil {
		return "", err
	}

	reply := cat.Format(msgKey, i18n.FormatCurrency(tx.Amount), tx.Category)
	if desc != "" {
		reply += cat.Format(i18n.MsgDescriptionLine, desc)
	}
	return reply, nil
}

func (d *Dispatcher) handleBalance(ctx context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	bal, err := d.ledger.Balance(ctx)
	if err != nil {
		return "", err
	}
	return cat.Format(i18n.MsgBalance, i18n.FormatCurrency(bal)), nil
}

func (d *Dispatcher) handleReport(ctx context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	bal, err := d.ledger.Balance(ctx)
	if err != nil {
		return "", err
	}
	sum, err := d.ledger.MonthlySummary(ctx)
	if err != nil {
		return "", err
	}
	goals, err := d.ledger.SavingsGoals(ctx)
	if err != nil {
		return "", err
	}

	lines := []string{
		cat.Message(i18n.MsgReportHeader),
		cat.Format(i18n.MsgReportTotals,
			i18n.FormatCurrency(bal),
			i18n.FormatCurrency(sum.Income),
			i18n.FormatCurrency(sum.Expenses),
			i18n.FormatCurrency(sum.Savings)),
	}

	if len(sum.Categories) == 0 && sum.Income == 0 {
		lines = append(lines, cat.Message(i18n.MsgReportEmpty))
	}
	if len(sum.Categories) > 0 {
		lines = append(lines, cat.Message(i18n.MsgReportCategories))
		names := make([]string, 0, len(sum.Categories))
		for name := range sum.Categories {
			names = append(names, name)
		}
		// Largest spend first.
		sort.Slice(names, func(i, j int) bool {
			a, b := sum.Categories[names[i]], sum.Categories[names[j]]
			if a != b {
				return a > b
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			lines = append(lines, cat.Format(i18n.MsgReportCategory, name, i18n.FormatCurrency(sum.Categories[name])))
		}
	}
	if len(goals) > 0 {
		lines = append(lines, cat.Message(i18n.MsgReportGoals))
		for _, g := range goals {
			lines = append(lines, cat.Format(i18n.MsgReportGoal,
				g.Name, i18n.FormatCurrency(g.Current), i18n.FormatCurrency(g.Target), g.Progress()))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) handleHelp(_ context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	return cat.Message(i18n.MsgHelp), nil
}

func (d *Dispatcher) handleInvest(_ context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	return cat.Message(i18n.MsgInvest), nil
}

func (d *Dispatcher) handleMarket(_ context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	return cat.Message(i18n.MsgMarket), nil
}

// goalPeriods returns the leading integer of duration ("6bulan" is 6), or
// DefaultGoalPeriods when there is none.
func goalPeriods(duration string) int {
	end := strings.IndexFunc(duration, func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		end = len(duration)
	}
	n, err := strconv.Atoi(duration[:end])
	if err != nil || n <= 0 {
		return DefaultGoalPeriods
	}
	return n
}

func (d *Dispatcher) handleGoal(ctx context.Context, cat *i18n.Catalog, args []string) (string, error) {
	raw := arg(args, 0)
	if raw == "" {
		return cat.Message(i18n.MsgGoalUsage), nil
	}
	target, ok := parseAmount(raw)
	if !ok {
		return "", &ValidationError{Field: "target", Value: raw, Reply: cat.Message(i18n.MsgGoalInvalid)}
	}

	name := arg(args, 1)
	if name == "" {
		name = cat.Message(i18n.MsgGoalDefaultName)
	}
	deadline := arg(args, 2)

	goal, err := d.ledger.AddSavingsGoal(ctx, name, target, deadline)
	if err != nil {
		return "", err
	}

	shown := goal.Deadline
	if shown == "" {
		shown = cat.Message(i18n.MsgGoalNoDeadline)
	}
	monthly := target / float64(goalPeriods(deadline))
	return cat.Format(i18n.MsgGoalCreated,
		goal.Name, i18n.FormatCurrency(goal.Target), shown, i18n.FormatCurrency(monthly)), nil
}

func (d *Dispatcher) handlePlan(ctx context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	bal, err := d.ledger.Balance(ctx)
	if err != nil {
		return "", err
	}
	sum, err := d.ledger.MonthlySummary(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(planAdvice(cat, bal, sum), "\n\n"), nil
}

// planAdvice applies the advisory thresholds to the month's figures.
func planAdvice(cat *i18n.Catalog, balance float64, sum ledger.Summary) []string {
	var advice []string

	var months float64
	if sum.Expenses > 0 {
		months = balance / sum.Expenses
	}
	if months < EmergencyFundMonths {
		advice = append(advice, cat.Format(i18n.MsgPlanEmergency, months, EmergencyFundMonths))
	}
	if sum.Expenses > sum.Income*MaxExpenseRatio {
		advice = append(advice, cat.Message(i18n.MsgPlanExpenseRatio))
	}
	if sum.SavingsRate() < RecommendedSavingsRate*100 {
		advice = append(advice, cat.Format(i18n.MsgPlanSavingsRate, int(RecommendedSavingsRate*100)))
	}
	if sum.Categories["food"] > sum.Income*FoodShareLimit {
		advice = append(advice, cat.Message(i18n.MsgPlanFood))
	}
	if sum.Categories["entertainment"] > sum.Income*EntertainmentLimit {
		advice = append(advice, cat.Message(i18n.MsgPlanEntertain))
	}
	if balance > InvestmentThreshold {
		advice = append(advice, cat.Message(i18n.MsgPlanInvest))
	}
	if len(advice) == 0 {
		advice = append(advice, cat.Message(i18n.MsgPlanOK))
	}
	return append(advice, cat.Message(i18n.MsgPlanTips))
}

func (d *Dispatcher) handleBudget(ctx context.Context, cat *i18n.Catalog, _ []string) (string, error) {
	sum, err := d.ledger.MonthlySummary(ctx)
	if err != nil {
		return "", err
	}
	if sum.Income <= 0 {
		return cat.Message(i18n.MsgBudgetNoIncome), nil
	}
	return cat.Format(i18n.MsgBudget,
		i18n.FormatCurrency(sum.Income),
		i18n.FormatCurrency(sum.Income*0.5),
		i18n.FormatCurrency(sum.Income*0.3),
		i18n.FormatCurrency(sum.Income*0.2)), nil
}
