// Package storage persists users, sessions, categories, expenses and budgets
// in sqlite, and exposes the grouped queries the dashboard needs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"finsight/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist or is owned by
	// another user. Callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateBudget is returned when a (user, category) budget
	// already exists.
	ErrDuplicateBudget = errors.New("budget already exists for category")
)

const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps in-memory databases coherent and avoids
	// SQLITE_BUSY under concurrent writes.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ---------------- categories ----------------

// ListCategories returns all categories in insertion order.
func (db *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory retrieves a category by ID.
func (db *DB) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, name FROM categories WHERE id = ?", id,
	).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ---------------- expenses ----------------

// CreateExpense inserts a new expense owned by the given user.
func (db *DB) CreateExpense(ctx context.Context, userID, categoryID, amountCents int64, description string, date time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (user_id, category_id, amount_cents, description, date) VALUES (?, ?, ?, ?, ?)",
		userID, categoryID, amountCents, description, date.Format(dateFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	return res.LastInsertId()
}

const expenseColumns = `e.id, e.user_id, e.category_id, c.name, e.amount_cents, e.description, e.date
	FROM expenses e JOIN categories c ON c.id = e.category_id`

func scanExpense(row interface{ Scan(...any) error }) (models.Expense, error) {
	var e models.Expense
	var date string
	if err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.CategoryName, &e.AmountCents, &e.Description, &date); err != nil {
		return e, err
	}
	d, err := time.Parse(dateFormat, date)
	if err != nil {
		return e, fmt.Errorf("parse expense date %q: %w", date, err)
	}
	e.Date = d
	return e, nil
}

// GetExpenseForUser retrieves a single expense, scoped to its owner.
// Expenses belonging to other users surface as ErrNotFound.
func (db *DB) GetExpenseForUser(ctx context.Context, userID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" WHERE e.id = ? AND e.user_id = ?", id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return &e, nil
}

// DeleteExpense deletes a single expense after an ownership check.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ExpensesForMonth returns a user's expenses within one calendar month,
// ordered by date descending.
func (db *DB) ExpensesForMonth(ctx context.Context, userID int64, year, month int) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" WHERE e.user_id = ? AND substr(e.date, 1, 7) = ? ORDER BY e.date DESC, e.id DESC",
		userID, monthKey(year, month))
	if err != nil {
		return nil, fmt.Errorf("expenses for month: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

// AllExpensesForUser returns every expense a user has recorded, oldest first.
func (db *DB) AllExpensesForUser(ctx context.Context, userID int64) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" WHERE e.user_id = ? ORDER BY e.date, e.id", userID)
	if err != nil {
		return nil, fmt.Errorf("all expenses: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func collectExpenses(rows *sql.Rows) ([]models.Expense, error) {
	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// CategoryTotalsForMonth sums a user's expenses within one calendar month,
// grouped by category in category insertion order.
func (db *DB) CategoryTotalsForMonth(ctx context.Context, userID int64, year, month int) ([]models.CategoryTotal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.name, SUM(e.amount_cents)
		FROM expenses e JOIN categories c ON c.id = e.category_id
		WHERE e.user_id = ? AND substr(e.date, 1, 7) = ?
		GROUP BY c.id, c.name
		ORDER BY c.id`,
		userID, monthKey(year, month))
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	var totals []models.CategoryTotal
	for rows.Next() {
		var t models.CategoryTotal
		if err := rows.Scan(&t.CategoryID, &t.CategoryName, &t.TotalCents); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// MonthlyTotals sums a user's entire expense history grouped by calendar
// month, in ascending chronological order.
func (db *DB) MonthlyTotals(ctx context.Context, userID int64) ([]models.MonthTotal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT substr(date, 1, 7) AS ym, SUM(amount_cents)
		FROM expenses
		WHERE user_id = ?
		GROUP BY ym
		ORDER BY ym`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	var totals []models.MonthTotal
	for rows.Next() {
		var ym string
		var t models.MonthTotal
		if err := rows.Scan(&ym, &t.TotalCents); err != nil {
			return nil, err
		}
		if t.Year, t.Month, err = parseMonthKey(ym); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// AvailableMonths returns the distinct calendar months present in a user's
// expense history, most recent first.
func (db *DB) AvailableMonths(ctx context.Context, userID int64) ([]models.YearMonth, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT substr(date, 1, 7) AS ym
		FROM expenses
		WHERE user_id = ?
		ORDER BY ym DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("available months: %w", err)
	}
	defer rows.Close()

	var months []models.YearMonth
	for rows.Next() {
		var ym string
		if err := rows.Scan(&ym); err != nil {
			return nil, err
		}
		var m models.YearMonth
		if m.Year, m.Month, err = parseMonthKey(ym); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

func parseMonthKey(ym string) (year, month int, err error) {
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return 0, 0, fmt.Errorf("parse month key %q: %w", ym, err)
	}
	return t.Year(), int(t.Month()), nil
}

// ---------------- budgets ----------------

// BudgetsForUser returns all budgets belonging to a user, oldest first.
func (db *DB) BudgetsForUser(ctx context.Context, userID int64) ([]models.Budget, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT b.id, b.user_id, b.category_id, c.name, b.limit_cents
		FROM budgets b JOIN categories c ON c.id = b.category_id
		WHERE b.user_id = ?
		ORDER BY b.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("budgets for user: %w", err)
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.CategoryName, &b.LimitCents); err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// CreateBudget inserts a budget for a (user, category) pair. A second budget
// for the same pair fails with ErrDuplicateBudget.
func (db *DB) CreateBudget(ctx context.Context, userID, categoryID, limitCents int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO budgets (user_id, category_id, limit_cents) VALUES (?, ?, ?)",
		userID, categoryID, limitCents)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, ErrDuplicateBudget
		}
		return 0, fmt.Errorf("create budget: %w", err)
	}
	return res.LastInsertId()
}

// DeleteBudget deletes a single budget after an ownership check.
func (db *DB) DeleteBudget(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM budgets WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------- users ----------------

// CreateUser creates a new user with the given username and password hash.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, id)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	u.CreatedAt = t
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id))
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username))
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// ---------------- sessions ----------------

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt.UTC().Format(timeFormat), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ValidateSession checks a session token and returns the associated user.
func (db *DB) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks a session token and returns session details.
// Expired sessions are treated as missing.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ?`, token)

	var u models.User
	var createdAt, lastActivity, expiresAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt, &lastActivity, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("validate session: %w", err)
	}

	info := &SessionInfo{User: &u}
	var err error
	if u.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	if info.LastActivity, err = time.Parse(timeFormat, lastActivity); err != nil {
		return nil, fmt.Errorf("parse session last_activity: %w", err)
	}
	if info.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, fmt.Errorf("parse session expires_at: %w", err)
	}

	if !info.ExpiresAt.After(time.Now()) {
		return nil, ErrNotFound
	}
	return info, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC().Format(timeFormat), newExpiresAt.UTC().Format(timeFormat), token)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC().Format(timeFormat))
	return err
}
