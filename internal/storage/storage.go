// internal/storage/storage.go
package storage

import (
	"context"
	"sort"
	"time"

	"expense-tracker/internal/domain"

	"github.com/shopspring/decimal"
)

// UserStorage lookups return domain.ErrNotFound for unknown users.
type UserStorage interface {
	// CreateUser fills in ID and CreatedAt. A taken email yields domain.ErrConflict.
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByVerificationToken(ctx context.Context, tokenHash string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetVerificationToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	MarkVerified(ctx context.Context, id string) error
	SetRole(ctx context.Context, id string, role domain.Role) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	// DeleteUser also removes the user's expenses and budget.
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)
}

// ExpenseStorage scopes every call by owner; a row owned by someone else is reported as domain.ErrNotFound.
type ExpenseStorage interface {
	// CreateExpense fills in ID and CreatedAt.
	CreateExpense(ctx context.Context, e *domain.Expense) error
	GetExpense(ctx context.Context, userID, id string) (*domain.Expense, error)
	// ListExpenses orders by date, newest first, then by creation time, newest first.
	ListExpenses(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error)
	UpdateExpense(ctx context.Context, userID, id string, patch domain.ExpensePatch) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) error
	// SumExpenses totals the amounts dated within [from, to].
	SumExpenses(ctx context.Context, userID string, from, to time.Time) (decimal.Decimal, error)
	// ListAllExpenses ignores ownership and is only used by the admin dashboard.
	ListAllExpenses(ctx context.Context) ([]domain.Expense, error)
	// RenameCategory rewrites the category of every stored expense and returns how many changed.
	RenameCategory(ctx context.Context, from, to domain.Category) (int64, error)
}

type BudgetStorage interface {
	// GetBudget returns nil, nil when the user never set a budget.
	GetBudget(ctx context.Context, userID string) (*domain.Budget, error)
	// UpsertBudget keeps the stored threshold when threshold is nil,
	// falling back to domain.DefaultWarningThreshold for a new row.
	UpsertBudget(ctx context.Context, userID string, amount decimal.Decimal, threshold *int) (*domain.Budget, error)
}

// Store is what a persistence backend provides.
type Store interface {
	UserStorage
	ExpenseStorage
	BudgetStorage

	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// SortExpenses applies the ListExpenses order for backends that cannot sort in the query.
func SortExpenses(items []domain.Expense) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
