// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"expense-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Storage struct {
	db *pgxpool.Pool
}

func NewStorage(db *pgxpool.Pool) *Storage {
	return &Storage{db: db}
}

// Open connects, pings and migrates. Close releases the pool.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := Migrate(ctx, db); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStorage(pool), nil
}

// Migrate applies the embedded goose migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("Migration applied", "backend", "postgres", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (s *Storage) Name() string { return "postgres" }

func (s *Storage) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Storage) Close() error {
	s.db.Close()
	return nil
}

// parseID maps ids that cannot be UUIDs to ErrNotFound instead of a query error.
func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// === UserStorage ===

const userColumns = `id, name, email, password_hash, role, is_verified,
	COALESCE(verification_token_hash, ''), verification_token_expires, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u    domain.User
		id   uuid.UUID
		role string
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsVerified,
		&u.VerificationTokenHash, &u.VerificationTokenExpires, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.String()
	u.Role = domain.Role(role)
	return &u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *domain.User) error {
	id := uuid.New()
	if u.ID != "" {
		parsed, err := uuid.Parse(u.ID)
		if err != nil {
			return fmt.Errorf("create user: invalid id %q: %w", u.ID, err)
		}
		id = parsed
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var tokenHash *string
	if u.VerificationTokenHash != "" {
		tokenHash = &u.VerificationTokenHash
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, is_verified,
			verification_token_hash, verification_token_expires, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id, u.Name, u.Email, u.PasswordHash, string(u.Role), u.IsVerified, tokenHash, u.VerificationTokenExpires, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.ID = id.String()
	return nil
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.getUser(ctx, "id = $1", uid)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "LOWER(email) = LOWER($1)", email)
}

func (s *Storage) GetUserByVerificationToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	return s.getUser(ctx, "verification_token_hash = $1", tokenHash)
}

func (s *Storage) execUser(ctx context.Context, op, id, query string, args ...any) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(ctx, query, append([]any{uid}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execUser(ctx, "update password", id, "UPDATE users SET password_hash = $2 WHERE id = $1", passwordHash)
}

func (s *Storage) SetVerificationToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return s.execUser(ctx, "set verification token", id,
		"UPDATE users SET verification_token_hash = $2, verification_token_expires = $3 WHERE id = $1",
		tokenHash, expires)
}

func (s *Storage) MarkVerified(ctx context.Context, id string) error {
	return s.execUser(ctx, "mark verified", id,
		"UPDATE users SET is_verified = TRUE, verification_token_hash = NULL, verification_token_expires = NULL WHERE id = $1")
}

func (s *Storage) SetRole(ctx context.Context, id string, role domain.Role) error {
	return s.execUser(ctx, "set role", id, "UPDATE users SET role = $2 WHERE id = $1", string(role))
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at")
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

// DeleteUser relies on ON DELETE CASCADE for expenses and budgets.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	return s.execUser(ctx, "delete user", id, "DELETE FROM users WHERE id = $1")
}

func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// === ExpenseStorage ===

const expenseColumns = "id, user_id, description, amount::text, category, date, created_at"

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var (
		e        domain.Expense
		id, uid  uuid.UUID
		amount   string
		category string
	)
	if err := row.Scan(&id, &uid, &e.Description, &amount, &category, &e.Date, &e.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.ID = id.String()
	e.UserID = uid.String()
	e.Amount = d
	e.Category = domain.Category(category)
	e.Date = domain.DateOf(e.Date)
	return &e, nil
}

func (s *Storage) CreateExpense(ctx context.Context, e *domain.Expense) error {
	uid, err := parseID(e.UserID)
	if err != nil {
		return fmt.Errorf("create expense: unknown user %q: %w", e.UserID, err)
	}
	var createdAt time.Time
	var id uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO expenses (id, user_id, description, amount, category, date)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id, created_at
	`, uuid.New(), uid, e.Description, e.Amount.String(), string(e.Category), e.Date).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	e.ID = id.String()
	e.CreatedAt = createdAt
	return nil
}

func (s *Storage) GetExpense(ctx context.Context, userID, id string) (*domain.Expense, error) {
	eid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	e, err := scanExpense(s.db.QueryRow(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = $1 AND user_id = $2", eid, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *Storage) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := s.db.Query(ctx, query, args...)
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
	uid, err := parseID(userID)
	if err != nil {
		return []domain.Expense{}, nil
	}
	where := []string{"user_id = $1"}
	args := []any{uid}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.StartDate != nil {
		where = append(where, "date >= "+next(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "date <= "+next(*filter.EndDate))
	}
	if filter.Category != "" {
		where = append(where, "category = "+next(string(filter.Category)))
	}
	query := "SELECT " + expenseColumns + " FROM expenses WHERE " + strings.Join(where, " AND ") +
		" ORDER BY date DESC, created_at DESC"
	return s.queryExpenses(ctx, query, args...)
}

func (s *Storage) UpdateExpense(ctx context.Context, userID, id string, patch domain.ExpensePatch) (*domain.Expense, error) {
	eid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	var amount, category *string
	if patch.Amount != nil {
		a := patch.Amount.String()
		amount = &a
	}
	if patch.Category != nil {
		c := string(*patch.Category)
		category = &c
	}
	e, err := scanExpense(s.db.QueryRow(ctx, `
		UPDATE expenses SET
			description = COALESCE($3, description),
			amount      = COALESCE($4::numeric, amount),
			category    = COALESCE($5, category),
			date        = COALESCE($6, date)
		WHERE id = $1 AND user_id = $2
		RETURNING `+expenseColumns,
		eid, uid, patch.Description, amount, category, patch.Date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

func (s *Storage) DeleteExpense(ctx context.Context, userID, id string) error {
	eid, err := parseID(id)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(ctx, "DELETE FROM expenses WHERE id = $1 AND user_id = $2", eid, uid)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Storage) SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	uid, err := parseID(userID)
	if err != nil {
		return decimal.Zero, nil
	}
	var total string
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM expenses
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
	`, uid, from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return decimal.NewFromString(total)
}

func (s *Storage) ListAllExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.queryExpenses(ctx, "SELECT "+expenseColumns+" FROM expenses ORDER BY date DESC, created_at DESC")
}

func (s *Storage) RenameCategory(ctx context.Context, from, to domain.Category) (int64, error) {
	result, err := s.db.Exec(ctx, "UPDATE expenses SET category = $1 WHERE category = $2", string(to), string(from))
	if err != nil {
		return 0, fmt.Errorf("rename category: %w", err)
	}
	return result.RowsAffected(), nil
}

// === BudgetStorage ===

func (s *Storage) GetBudget(ctx context.Context, userID string) (*domain.Budget, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, nil
	}
	b := domain.Budget{UserID: userID}
	var amount string
	err = s.db.QueryRow(ctx, `
		SELECT monthly_budget::text, warning_threshold, updated_at FROM budgets WHERE user_id = $1
	`, uid).Scan(&amount, &b.WarningThreshold, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get budget: %w", err)
	}
	if b.MonthlyBudget, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse budget %q: %w", amount, err)
	}
	return &b, nil
}

func (s *Storage) UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal, threshold *int) (*domain.Budget, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO budgets (user_id, monthly_budget, warning_threshold, updated_at)
		VALUES ($1, $2::numeric, COALESCE($3::int, $4::int), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			monthly_budget    = EXCLUDED.monthly_budget,
			warning_threshold = COALESCE($3::int, budgets.warning_threshold),
			updated_at        = EXCLUDED.updated_at
	`, uid, amount.String(), threshold, domain.DefaultWarningThreshold)
	if err != nil {
		return nil, fmt.Errorf("upsert budget: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit budget: %w", err)
	}
	return s.GetBudget(ctx, userID)
}
