// Package i18n holds the bot's dictionaries: command aliases, category
// aliases and reply templates, loaded from YAML.
package i18n

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"kasbot/internal/logging"

	"gopkg.in/yaml.v3"
)

//go:embed id.yaml
var defaultCatalog []byte

// Message keys the dispatcher relies on.
const (
	MsgErrorGeneric     = "error_generic"
	MsgInvalidAmount    = "invalid_amount"
	MsgExpenseRecorded  = "expense_recorded"
	MsgIncomeRecorded   = "income_recorded"
	MsgDescriptionLine  = "description_line"
	MsgBalance          = "balance"
	MsgReportHeader     = "report_header"
	MsgReportTotals     = "report_totals"
	MsgReportCategories = "report_categories"
	MsgReportCategory   = "report_category_line"
	MsgReportGoals      = "report_goals"
	MsgReportGoal       = "report_goal_line"
	MsgReportEmpty      = "report_empty"
	MsgGoalUsage        = "goal_usage"
	MsgGoalInvalid      = "goal_invalid"
	MsgGoalDefaultName  = "goal_default_name"
	MsgGoalNoDeadline   = "goal_no_deadline"
	MsgGoalCreated      = "goal_created"
	MsgPlanEmergency    = "plan_emergency"
	MsgPlanExpenseRatio = "plan_expense_ratio"
	MsgPlanSavingsRate  = "plan_savings_rate"
	MsgPlanFood         = "plan_food"
	MsgPlanEntertain    = "plan_entertainment"
	MsgPlanInvest       = "plan_invest"
	MsgPlanOK           = "plan_ok"
	MsgPlanTips         = "plan_tips"
	MsgBudgetNoIncome   = "budget_no_income"
	MsgBudget           = "budget"
	MsgInvest           = "invest"
	MsgMarket           = "market"
	MsgHelp             = "help"
)

// RequiredMessages lists the keys every catalog must define: all of the
// keys above.
var RequiredMessages = []string{
	MsgErrorGeneric, MsgInvalidAmount, MsgExpenseRecorded, MsgIncomeRecorded,
	MsgDescriptionLine, MsgBalance,
	MsgReportHeader, MsgReportTotals, MsgReportCategories, MsgReportCategory,
	MsgReportGoals, MsgReportGoal, MsgReportEmpty,
	MsgGoalUsage, MsgGoalInvalid, MsgGoalDefaultName, MsgGoalNoDeadline, MsgGoalCreated,
	MsgPlanEmergency, MsgPlanExpenseRatio, MsgPlanSavingsRate, MsgPlanFood,
	MsgPlanEntertain, MsgPlanInvest, MsgPlanOK, MsgPlanTips,
	MsgBudgetNoIncome, MsgBudget, MsgInvest, MsgMarket, MsgHelp,
}

// Table maps aliases onto canonical names. Lookups ignore case.
type Table struct {
	entries map[string]string
}

// NewTable builds a table from canonical name to aliases. The canonical name
// is not an alias of itself unless listed. An alias claimed by two canonical
// names is an error.
func NewTable(groups map[string][]string) (Table, error) {
	t := Table{entries: make(map[string]string)}
	for canonical, aliases := range groups {
		for _, a := range aliases {
			key := strings.ToLower(strings.TrimSpace(a))
			if key == "" {
				continue
			}
			if prev, ok := t.entries[key]; ok && prev != canonical {
				return Table{}, fmt.Errorf("alias %q maps to both %q and %q", key, prev, canonical)
			}
			t.entries[key] = canonical
		}
	}
	return t, nil
}

// Lookup returns the canonical name for key.
func (t Table) Lookup(key string) (string, bool) {
	v, ok := t.entries[strings.ToLower(key)]
	return v, ok
}

// Len returns the number of aliases.
func (t Table) Len() int { return len(t.entries) }

// Canonical returns the sorted set of canonical names.
func (t Table) Canonical() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range t.entries {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Catalog is one language's dictionary.
type Catalog struct {
	Language          string
	Commands          Table
	ExpenseCategories Table
	IncomeCategories  Table

	messages map[string]string
}

type catalogFile struct {
	Language          string              `yaml:"language"`
	Commands          map[string][]string `yaml:"commands"`
	ExpenseCategories map[string][]string `yaml:"expense_categories"`
	IncomeCategories  map[string][]string `yaml:"income_categories"`
	Messages          map[string]string   `yaml:"messages"`
}

// Parse decodes a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Commands) == 0 {
		return nil, fmt.Errorf("catalog defines no commands")
	}

	c := &Catalog{Language: f.Language, messages: f.Messages}
	var err error
	if c.Commands, err = NewTable(f.Commands); err != nil {
		return nil, fmt.Errorf("commands: %w", err)
	}
	if c.ExpenseCategories, err = NewTable(f.ExpenseCategories); err != nil {
		return nil, fmt.Errorf("expense_categories: %w", err)
	}
	if c.IncomeCategories, err = NewTable(f.IncomeCategories); err != nil {
		return nil, fmt.Errorf("income_categories: %w", err)
	}

	var missing []string
	for _, key := range RequiredMessages {
		if _, ok := c.messages[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("catalog is missing messages: %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// Load reads a catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded Indonesian catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// DefaultYAML returns the embedded catalog source, for seeding a local copy.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultCatalog...)
}

// Message returns the raw template for key. Unknown keys return the key so a
// gap in the dictionary shows up in the reply rather than as a blank message.
func (c *Catalog) Message(key string) string {
	if m, ok := c.messages[key]; ok {
		return m
	}
	logging.LocaleWarn("missing message %q", key)
	return key
}

// Format renders the template for key with args.
func (c *Catalog) Format(key string, args ...interface{}) string {
	return fmt.Sprintf(c.Message(key), args...)
}

// Category resolves a category alias for the given transaction kind
// ("expense" or "income").
func (c *Catalog) Category(kind, alias string) (string, bool) {
	switch kind {
	case "expense":
		return c.ExpenseCategories.Lookup(alias)
	case "income":
		return c.IncomeCategories.Lookup(alias)
	}
	return "", false
}
