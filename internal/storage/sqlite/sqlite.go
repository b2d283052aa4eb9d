// internal/storage/sqlite/sqlite.go
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expense-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// fixed width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies pending migrations.
// ":memory:" gives a private in-process database.
func Open(ctx context.Context, path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection: sqlite has a single writer and :memory: is per connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db, now: time.Now}, nil
}

// Migrate applies the embedded goose migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("Migration applied", "backend", "sqlite", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (s *Storage) Name() string { return "sqlite" }

func (s *Storage) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Storage) Close() error { return s.db.Close() }

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// parseTime also reads the variable-width RFC 3339 values of older rows.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// === UserStorage ===

const userColumns = `id, name, email, password_hash, role, is_verified,
	COALESCE(verification_token_hash, ''), verification_token_expires, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		role      string
		expires   sql.NullString
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsVerified,
		&u.VerificationTokenHash, &expires, &createdAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if expires.Valid {
		t, err := parseTime(expires.String)
		if err != nil {
			return nil, fmt.Errorf("parse verification_token_expires: %w", err)
		}
		u.VerificationTokenExpires = &t
	}
	return &u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	var expires any
	if u.VerificationTokenExpires != nil {
		expires = formatTime(*u.VerificationTokenExpires)
	}
	var tokenHash any
	if u.VerificationTokenHash != "" {
		tokenHash = u.VerificationTokenHash
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, is_verified,
			verification_token_hash, verification_token_expires, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.IsVerified, tokenHash, expires, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *Storage) GetUserByVerificationToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	return s.getUser(ctx, "verification_token_hash = ?", tokenHash)
}

func (s *Storage) execUser(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execUser(ctx, "update password", "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
}

func (s *Storage) SetVerificationToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return s.execUser(ctx, "set verification token",
		"UPDATE users SET verification_token_hash = ?, verification_token_expires = ? WHERE id = ?",
		tokenHash, formatTime(expires), id)
}

func (s *Storage) MarkVerified(ctx context.Context, id string) error {
	return s.execUser(ctx, "mark verified",
		"UPDATE users SET is_verified = 1, verification_token_hash = NULL, verification_token_expires = NULL WHERE id = ?", id)
}

func (s *Storage) SetRole(ctx context.Context, id string, role domain.Role) error {
	return s.execUser(ctx, "set role", "UPDATE users SET role = ? WHERE id = ?", string(role), id)
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("delete user expenses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM budgets WHERE user_id = ?", id); err != nil {
		return fmt.Errorf("delete user budget: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// === ExpenseStorage ===

const expenseColumns = "id, user_id, description, amount_cents, category, date, created_at"

func scanExpense(row rowScanner) (*domain.Expense, error) {
	var (
		e         domain.Expense
		cents     int64
		category  string
		day       string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Description, &cents, &category, &day, &createdAt); err != nil {
		return nil, err
	}
	e.Amount = fromCents(cents)
	e.Category = domain.Category(category)
	var err error
	if e.Date, err = time.Parse(domain.DateLayout, day); err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &e, nil
}

func (s *Storage) CreateExpense(ctx context.Context, e *domain.Expense) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Description, toCents(e.Amount), string(e.Category),
		e.Date.Format(domain.DateLayout), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

func (s *Storage) GetExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?", id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *Storage) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []domain.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Storage) ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, filter.StartDate.Format(domain.DateLayout))
	}
	if filter.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, filter.EndDate.Format(domain.DateLayout))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	query := "SELECT " + expenseColumns + " FROM expenses WHERE " + strings.Join(where, " AND ") +
		" ORDER BY date DESC, created_at DESC"
	return s.queryExpenses(ctx, query, args...)
}

func (s *Storage) UpdateExpense(ctx context.Context, userID, id string, patch domain.ExpensePatch) (*domain.Expense, error) {
	var description, cents, category, day any
	if patch.Description != nil {
		description = *patch.Description
	}
	if patch.Amount != nil {
		cents = toCents(*patch.Amount)
	}
	if patch.Category != nil {
		category = string(*patch.Category)
	}
	if patch.Date != nil {
		day = patch.Date.Format(domain.DateLayout)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET
			description  = COALESCE(?, description),
			amount_cents = COALESCE(?, amount_cents),
			category     = COALESCE(?, category),
			date         = COALESCE(?, date)
		WHERE id = ? AND user_id = ?
	`, description, cents, category, day, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound
	}
	return s.GetExpense(ctx, userID, id)
}

func (s *Storage) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	var cents int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM expenses
		WHERE user_id = ? AND date >= ? AND date <= ?
	`, userID, from.Format(domain.DateLayout), to.Format(domain.DateLayout)).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return fromCents(cents), nil
}

func (s *Storage) ListAllExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, "SELECT "+expenseColumns+" FROM expenses ORDER BY date DESC, created_at DESC")
}

func (s *Storage) RenameCategory(ctx context.Context, from, to domain.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE expenses SET category = ? WHERE category = ?", string(to), string(from))
	if err != nil {
		return 0, fmt.Errorf("rename category: %w", err)
	}
	return res.RowsAffected()
}

// === BudgetStorage ===

func (s *Storage) GetBudget(ctx context.Context, userID string) (*domain.Budget, error) {
	var (
		b         = domain.Budget{UserID: userID}
		cents     int64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT monthly_budget_cents, warning_threshold, updated_at FROM budgets WHERE user_id = ?", userID,
	).Scan(&cents, &b.WarningThreshold, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get budget: %w", err)
	}
	b.MonthlyBudget = fromCents(cents)
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &b, nil
}

func (s *Storage) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal, threshold *int) (*domain.Budget, error) {
	var th any
	if threshold != nil {
		th = *threshold
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, monthly_budget_cents, warning_threshold, updated_at)
		VALUES (?1, ?2, COALESCE(?3, ?5), ?4)
		ON CONFLICT (user_id) DO UPDATE SET
			monthly_budget_cents = excluded.monthly_budget_cents,
			warning_threshold    = COALESCE(?3, budgets.warning_threshold),
			updated_at           = excluded.updated_at
	`, userID, toCents(amount), th, formatTime(s.now()), domain.DefaultWarningThreshold)
	if err != nil {
		return nil, fmt.Errorf("upsert budget: %w", err)
	}
	return s.GetBudget(ctx, userID)
}
