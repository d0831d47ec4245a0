package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kasbot/internal/logging"

	"github.com/hashicorp/go-multierror"
	_ "modernc.org/sqlite"
)

// schemaVersion is stored in PRAGMA user_version.
// v1: transactions, savings_goals
const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL CHECK (kind IN ('expense', 'income')),
		amount REAL NOT NULL CHECK (amount > 0),
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
	`CREATE TABLE IF NOT EXISTS savings_goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		target_amount REAL NOT NULL CHECK (target_amount > 0),
		current_amount REAL NOT NULL DEFAULT 0,
		deadline TEXT,
		created_at INTEGER NOT NULL
	)`,
}

// ErrInvalidAmount is returned for amounts that are not finite and positive.
var ErrInvalidAmount = errors.New("amount must be a positive number")

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps and month boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBusyTimeout sets how long writers wait on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// Store is the SQLite-backed ledger.
type Store struct {
	db          *sql.DB
	mu          sync.Mutex
	path        string
	now         func() time.Time
	busyTimeout time.Duration
	closed      bool
}

// Open opens or creates the ledger database at path.
func Open(path string, opts ...Option) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryLedger, "Open")
	defer timer.Stop()

	s := &Store{path: path, now: time.Now, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			logging.LedgerDebug("failed to apply %q: %v", p, err)
		}
	}

	s.db = db
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Ledger("ledger ready at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	logging.LedgerDebug("schema migrated from v%d to v%d", version, schemaVersion)
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close checkpoints the WAL and closes the database. Calling it twice is a
// no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		result = multierror.Append(result, fmt.Errorf("checkpoint: %w", err))
	}
	if err := s.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close: %w", err))
	}
	return result.ErrorOrNil()
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// RecordTransaction stores a transaction. Income also moves SavingsShare of
// the amount, split evenly, into goals that have not reached their target.
// No goal is funded past its target.
func (s *Store) RecordTransaction(ctx context.Context, kind Kind, amount float64, category, description string) (Transaction, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Transaction{}, err
	}
	if !validAmount(amount) {
		return Transaction{}, ErrInvalidAmount
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = "other"
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (kind, amount, category, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(kind), amount, category, description, now.Unix())
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	if kind == Income {
		if err := allocateSavings(ctx, tx, amount); err != nil {
			return Transaction{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Transaction{}, fmt.Errorf("commit: %w", err)
	}

	logging.LedgerDebug("recorded %s %.2f (%s)", kind, amount, category)
	return Transaction{
		ID:          id,
		Kind:        kind,
		Amount:      amount,
		Category:    category,
		Description: description,
		CreatedAt:   time.Unix(now.Unix(), 0),
	}, nil
}

func allocateSavings(ctx context.Context, tx *sql.Tx, income float64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, target_amount, current_amount FROM savings_goals WHERE current_amount < target_amount ORDER BY id`)
	if err != nil {
		return fmt.Errorf("list open goals: %w", err)
	}
	type open struct {
		id              int64
		target, current float64
	}
	var goals []open
	for rows.Next() {
		var g open
		if err := rows.Scan(&g.id, &g.target, &g.current); err != nil {
			rows.Close()
			return fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list open goals: %w", err)
	}
	if len(goals) == 0 {
		return nil
	}

	share := income * SavingsShare / float64(len(goals))
	for _, g := range goals {
		add := math.Min(share, g.target-g.current)
		if _, err := tx.ExecContext(ctx,
			`UPDATE savings_goals SET current_amount = current_amount + ? WHERE id = ?`, add, g.id); err != nil {
			return fmt.Errorf("fund goal %d: %w", g.id, err)
		}
	}
	logging.LedgerDebug("allocated %.2f across %d goals", share*float64(len(goals)), len(goals))
	return nil
}

// Balance returns total income minus total expenses.
func (s *Store) Balance(ctx context.Context) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'income' THEN amount ELSE -amount END), 0)
		FROM transactions`).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	return balance, nil
}

// monthBounds returns the unix range of the calendar month containing t.
func monthBounds(t time.Time) (int64, int64) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start.Unix(), start.AddDate(0, 1, 0).Unix()
}

// MonthlySummary aggregates the current calendar month.
func (s *Store) MonthlySummary(ctx context.Context) (Summary, error) {
	now := s.now()
	from, to := monthBounds(now)
	sum := Summary{Year: now.Year(), Month: now.Month(), Categories: map[string]float64{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, category, SUM(amount) FROM transactions
		WHERE created_at >= ? AND created_at < ?
		GROUP BY kind, category`, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("monthly summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, category string
		var total float64
		if err := rows.Scan(&kind, &category, &total); err != nil {
			return Summary{}, fmt.Errorf("monthly summary: %w", err)
		}
		switch Kind(kind) {
		case Income:
			sum.Income += total
		case Expense:
			sum.Expenses += total
			sum.Categories[category] += total
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("monthly summary: %w", err)
	}
	sum.Savings = sum.Income - sum.Expenses
	return sum, nil
}

// AddSavingsGoal creates a goal. An empty deadline is stored as NULL.
func (s *Store) AddSavingsGoal(ctx context.Context, name string, target float64, deadline string) (Goal, error) {
	if !validAmount(target) {
		return Goal{}, ErrInvalidAmount
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Goal{}, errors.New("goal name is required")
	}
	var dl sql.NullString
	if deadline != "" {
		dl = sql.NullString{String: deadline, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO savings_goals (name, target_amount, deadline, created_at) VALUES (?, ?, ?, ?)`,
		name, target, dl, s.now().Unix())
	if err != nil {
		return Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	logging.LedgerDebug("added goal %q target %.2f", name, target)
	return Goal{ID: id, Name: name, Target: target, Deadline: deadline}, nil
}

// SavingsGoals lists every goal in creation order.
func (s *Store) SavingsGoals(ctx context.Context) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, target_amount, current_amount, deadline FROM savings_goals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []Goal
	for rows.Next() {
		var g Goal
		var dl sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.Target, &g.Current, &dl); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.Deadline = dl.String
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// Transactions returns the newest transactions first. A limit of zero or less
// returns all of them.
func (s *Store) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	query := `SELECT id, kind, amount, category, description, created_at FROM transactions ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var kind string
		var created int64
		if err := rows.Scan(&t.ID, &kind, &t.Amount, &t.Category, &t.Description, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = Kind(kind)
		t.CreatedAt = time.Unix(created, 0)
		out = append(out, t)
	}
	return out, rows.Err()
}
