package service

import (
	"context"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/export"
	"expense-tracker/internal/storage"

	"github.com/shopspring/decimal"
)

// Export is a rendered CSV attachment.
type Export struct {
	Filename string
	Content  string
}

type ExportService struct {
	expenses *ExpenseService
	users    storage.UserStorage
	budgets  storage.BudgetStorage
	clock    Clock
}

func NewExportService(expenses *ExpenseService, users storage.UserStorage, budgets storage.BudgetStorage, clock Clock) *ExportService {
	return &ExportService{expenses: expenses, users: users, budgets: budgets, clock: clock}
}

// filenameDay uses the UTC date so the same download is named alike everywhere.
func (s *ExportService) filenameDay() time.Time {
	return s.clock.now().UTC()
}

func (s *ExportService) Expenses(ctx context.Context, userID string, filter domain.ExpenseFilter) (*Export, error) {
	items, err := s.expenses.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.E(domain.ErrNotFound, "No expenses found for the specified criteria")
	}
	return &Export{
		Filename: export.Filename("expenses", s.filenameDay()),
		Content:  export.ExpensesCSV(items),
	}, nil
}

// ExpensesWithBudget reports the budget against the filtered rows, not the calendar month.
func (s *ExportService) ExpensesWithBudget(ctx context.Context, userID string, filter domain.ExpenseFilter) (*Export, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, err := s.budgets.GetBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.expenses.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	limit := decimal.Zero
	if b != nil {
		limit = b.MonthlyBudget
	}
	return &Export{
		Filename: export.Filename("expense-report", s.filenameDay()),
		Content: export.BudgetReportCSV(export.BudgetReport{
			GeneratedAt:   s.clock.now(),
			UserName:      user.Name,
			UserEmail:     user.Email,
			MonthlyBudget: limit,
			Expenses:      items,
		}),
	}, nil
}

func (s *ExportService) MonthlySummary(ctx context.Context, userID string) (*Export, error) {
	summaries, err := s.expenses.MonthlySummary(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, domain.E(domain.ErrNotFound, "No expense data available")
	}
	return &Export{
		Filename: export.Filename("monthly-summary", s.filenameDay()),
		Content:  export.MonthlySummaryCSV(s.clock.now(), summaries),
	}, nil
}
