// Package storage persists users and expenses in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spendlog/internal/core"
)

const timestampLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements ports.Pinger
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const userColumns = `id, COALESCE(external_id, ''), name, email, allowance, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u         core.User
		allowance string
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Name, &u.Email, &allowance, &createdAt); err != nil {
		return core.User{}, err
	}
	var err error
	if u.Allowance, err = decimal.NewFromString(allowance); err != nil {
		return core.User{}, fmt.Errorf("decode allowance of user %d: %w", u.ID, err)
	}
	if u.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return core.User{}, fmt.Errorf("decode created_at of user %d: %w", u.ID, err)
	}
	return u, nil
}

// GetUser implements ports.UserReader
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, wrapNotFound(err, "get user %d", id)
	}
	return u, nil
}

// GetUserByExternalID implements ports.UserReader
func (r *SQLiteRepository) GetUserByExternalID(ctx context.Context, externalID string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, wrapNotFound(err, "get user by external id %q", externalID)
	}
	return u, nil
}

// ListUsers implements ports.UserReader
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser implements ports.UserWriter
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (external_id, name, email, allowance, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullString(u.ExternalID), u.Name, u.Email, u.Allowance.String(), u.CreatedAt.Format(timestampLayout))
	if err != nil {
		return core.User{}, wrapConstraint(err, "create user")
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, fmt.Errorf("create user: last insert id: %w", err)
	}

	slog.InfoContext(ctx, "User saved to SQLite", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// UpdateIdentity implements ports.UserWriter
func (r *SQLiteRepository) UpdateIdentity(ctx context.Context, id int64, name, email string) (core.User, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET name = ?, email = ? WHERE id = ?`, name, email, id)
	if err != nil {
		return core.User{}, wrapConstraint(err, "update user identity")
	}
	if err := requireAffected(res, "update user %d", id); err != nil {
		return core.User{}, err
	}
	return r.GetUser(ctx, id)
}

// UpdateAllowance implements ports.UserWriter
func (r *SQLiteRepository) UpdateAllowance(ctx context.Context, id int64, allowance decimal.Decimal) (core.User, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET allowance = ? WHERE id = ?`, allowance.String(), id)
	if err != nil {
		return core.User{}, fmt.Errorf("update allowance: %w", err)
	}
	if err := requireAffected(res, "update allowance of user %d", id); err != nil {
		return core.User{}, err
	}
	return r.GetUser(ctx, id)
}

// DeleteUser implements ports.UserWriter. Expenses go with the user via ON DELETE CASCADE.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res, "delete user %d", id)
}

const expenseColumns = `id, user_id, title, amount, COALESCE(category, ''), COALESCE(date, ''), created_at`

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		amount    string
		date      string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &amount, &e.Category, &date, &createdAt); err != nil {
		return core.Expense{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("decode amount of expense %d: %w", e.ID, err)
	}
	if date != "" {
		if e.Date, err = core.ParseDate(date); err != nil {
			return core.Expense{}, fmt.Errorf("decode date of expense %d: %w", e.ID, err)
		}
	}
	if e.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("decode created_at of expense %d: %w", e.ID, err)
	}
	return e, nil
}

// CreateExpense implements ports.ExpenseWriter
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, title, amount, category, date, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Title, e.Amount.String(), nullString(e.Category), nullString(e.Date.String()),
		e.CreatedAt.Format(timestampLayout))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY") {
			return core.Expense{}, fmt.Errorf("create expense for user %d: %w", e.UserID, core.ErrNotFound)
		}
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount.String(),
		"date", e.Date.String())
	return e, nil
}

// DeleteExpense implements ports.ExpenseWriter
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(res, "delete expense %d of user %d", id, userID)
}

// ListExpenses implements ports.ExpenseLister
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, dr core.DateRange) ([]core.Expense, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if !dr.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, dr.From.String())
	}
	if !dr.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, dr.To.String())
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC NULLS LAST, id DESC`
	return r.queryExpenses(ctx, query, args...)
}

// GetExpense implements ports.ExportQueue
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, wrapNotFound(err, "get expense %d", id)
	}
	return e, nil
}

// ListPendingExport implements ports.ExportQueue, oldest first.
func (r *SQLiteRepository) ListPendingExport(ctx context.Context, limit int) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE exported_at IS NULL ORDER BY id LIMIT ?`, limit)
}

// IsExported implements ports.ExportQueue
func (r *SQLiteRepository) IsExported(ctx context.Context, id int64) (bool, error) {
	var exported bool
	err := r.db.QueryRowContext(ctx,
		`SELECT exported_at IS NOT NULL FROM expenses WHERE id = ?`, id).Scan(&exported)
	if err != nil {
		return false, wrapNotFound(err, "check expense %d export", id)
	}
	return exported, nil
}

// MarkExported implements ports.ExportQueue
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET exported_at = ?, export_ref = ? WHERE id = ?`,
		r.now().Format(timestampLayout), nullString(ref), id)
	if err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	if err := requireAffected(res, "mark expense %d exported", id); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Expense marked as exported", "id", id, "ref", ref)
	return nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		err = core.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func requireAffected(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf(format+": rows affected: %w", append(args, err)...)
	}
	if n == 0 {
		return fmt.Errorf(format+": %w", append(args, core.ErrNotFound)...)
	}
	return nil
}

// isConstraint matches an extended constraint code, or the primary code when
// the connection reports only primary codes.
func isConstraint(err error, code int, label string) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == code {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), label)
}

func wrapConstraint(err error, op string) error {
	if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE") {
		return fmt.Errorf("%s: %w", op, core.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
