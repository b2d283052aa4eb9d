package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"
)

// MigrateLegacyCategories rewrites Transport to Travelling. Running it twice is harmless.
func MigrateLegacyCategories(ctx context.Context, store storage.ExpenseStorage) (int64, error) {
	n, err := store.RenameCategory(ctx, domain.LegacyCategoryTransport, domain.CategoryTravelling)
	if err != nil {
		return 0, fmt.Errorf("migrate legacy categories: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Migrated legacy expense categories",
			"from", domain.LegacyCategoryTransport, "to", domain.CategoryTravelling, "count", n)
	}
	return n, nil
}

type ImportReport struct {
	Users           int
	Expenses        int
	Budgets         int
	SkippedExpenses int
}

// ErrTargetNotEmpty stops an import into a store that already has users.
var ErrTargetNotEmpty = fmt.Errorf("target store already has users: %w", domain.ErrConflict)

// ErrInvalidImport marks source data that cannot be imported as is.
var ErrInvalidImport = errors.New("invalid import data")

type importedUser struct {
	user   domain.User
	budget *domain.Budget
}

// ImportData copies users, expenses and budgets from src into an empty dst.
// The target assigns new ids; expenses follow their owner's new id and
// expenses whose owner is missing are skipped. Everything is read and checked
// before the first write, so bad source data leaves dst untouched.
func ImportData(ctx context.Context, src, dst storage.Store) (*ImportReport, error) {
	count, err := dst.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrTargetNotEmpty
	}

	users, expenses, skipped, err := readImport(ctx, src)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{SkippedExpenses: skipped}
	ids := make(map[string]string, len(users))
	for _, in := range users {
		u := in.user
		oldID := u.ID
		u.ID = ""
		if err := dst.CreateUser(ctx, &u); err != nil {
			return report, fmt.Errorf("import user %s: %w", u.Email, err)
		}
		ids[oldID] = u.ID
		report.Users++

		if b := in.budget; b != nil {
			threshold := b.WarningThreshold
			if _, err := dst.UpsertBudget(ctx, u.ID, b.MonthlyBudget, &threshold); err != nil {
				return report, fmt.Errorf("import budget of %s: %w", u.Email, err)
			}
			report.Budgets++
		}
	}

	for _, e := range expenses {
		e.ID = ""
		e.UserID = ids[e.UserID]
		if err := dst.CreateExpense(ctx, &e); err != nil {
			return report, fmt.Errorf("import expense: %w", err)
		}
		report.Expenses++
	}

	slog.InfoContext(ctx, "Imported data",
		"source", src.Name(), "target", dst.Name(),
		"users", report.Users, "expenses", report.Expenses,
		"budgets", report.Budgets, "skipped_expenses", report.SkippedExpenses)
	return report, nil
}

// readImport loads and normalizes everything ImportData is about to write.
func readImport(ctx context.Context, src storage.Store) ([]importedUser, []domain.Expense, int, error) {
	users, err := src.ListUsers(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list source users: %w", err)
	}

	out := make([]importedUser, 0, len(users))
	owners := make(map[string]bool, len(users))
	emails := make(map[string]bool, len(users))
	for _, u := range users {
		u.Email = normalizeEmail(u.Email)
		switch {
		case u.ID == "":
			return nil, nil, 0, fmt.Errorf("user %q has no id: %w", u.Email, ErrInvalidImport)
		case u.Email == "":
			return nil, nil, 0, fmt.Errorf("user %s has no email: %w", u.ID, ErrInvalidImport)
		case owners[u.ID]:
			return nil, nil, 0, fmt.Errorf("duplicate user id %s: %w", u.ID, ErrInvalidImport)
		case emails[u.Email]:
			return nil, nil, 0, fmt.Errorf("duplicate email %s: %w", u.Email, ErrInvalidImport)
		}
		if u.Role == "" {
			u.Role = domain.RoleUser
		}
		if !u.Role.Valid() {
			return nil, nil, 0, fmt.Errorf("user %s has role %q: %w", u.Email, u.Role, ErrInvalidImport)
		}
		owners[u.ID] = true
		emails[u.Email] = true

		b, err := src.GetBudget(ctx, u.ID)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("read budget of %s: %w", u.Email, err)
		}
		out = append(out, importedUser{user: u, budget: b})
	}

	all, err := src.ListAllExpenses(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("list source expenses: %w", err)
	}
	expenses := make([]domain.Expense, 0, len(all))
	skipped := 0
	for _, e := range all {
		if !owners[e.UserID] {
			skipped++
			continue
		}
		if e.Category == domain.LegacyCategoryTransport {
			e.Category = domain.CategoryTravelling
		}
		e.Amount = e.Amount.Round(2)
		switch {
		case !e.Category.Valid():
			return nil, nil, 0, fmt.Errorf("expense %s has category %q: %w", e.ID, e.Category, ErrInvalidImport)
		case !e.Amount.IsPositive():
			return nil, nil, 0, fmt.Errorf("expense %s has amount %s: %w", e.ID, e.Amount, ErrInvalidImport)
		case e.Date.IsZero():
			return nil, nil, 0, fmt.Errorf("expense %s has no valid date: %w", e.ID, ErrInvalidImport)
		}
		expenses = append(expenses, e)
	}
	return out, expenses, skipped, nil
}
