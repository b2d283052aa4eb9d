package service

import (
	"context"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/validator"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const historyMonths = 12

type BudgetInput struct {
	MonthlyBudget    *decimal.Decimal `json:"monthlyBudget" validate:"omitempty,gte=0"`
	WarningThreshold *int             `json:"budgetWarningThreshold" validate:"omitempty,gte=0,lte=100"`
}

type BudgetService struct {
	budgets  storage.BudgetStorage
	expenses storage.ExpenseStorage
	clock    Clock
}

func NewBudgetService(budgets storage.BudgetStorage, expenses storage.ExpenseStorage, clock Clock) *BudgetService {
	return &BudgetService{budgets: budgets, expenses: expenses, clock: clock}
}

var hundred = decimal.NewFromInt(100)

// usage compares spending against a limit. A zero limit never counts as used or exceeded.
func usage(limit, spent decimal.Decimal) (remaining, percentage decimal.Decimal, exceeded bool) {
	remaining = limit.Sub(spent)
	percentage = decimal.Zero
	if limit.IsPositive() {
		percentage = spent.Div(limit).Mul(hundred)
		exceeded = spent.GreaterThan(limit)
	}
	return remaining, percentage, exceeded
}

// Get measures the budget against the current calendar month.
func (s *BudgetService) Get(ctx context.Context, userID string) (*domain.BudgetStatus, error) {
	b, err := s.budgets.GetBudget(ctx, userID)
	if err != nil {
		return nil, err
	}

	year, month := s.clock.CurrentMonth()
	from, to := domain.MonthRange(year, month)
	spent, err := s.expenses.SumExpenses(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	status := &domain.BudgetStatus{
		TotalSpent:       spent,
		WarningThreshold: domain.DefaultWarningThreshold,
		Month:            from.Format("January 2006"),
	}
	limit := decimal.Zero
	if b != nil {
		amount := b.MonthlyBudget
		status.Budget = &amount
		status.WarningThreshold = b.WarningThreshold
		limit = amount
	}

	remaining, pct, exceeded := usage(limit, spent)
	status.Remaining = remaining
	status.PercentageUsed = pct.Round(2)
	status.IsExceeded = exceeded
	status.IsWarning = limit.IsPositive() && !exceeded &&
		pct.GreaterThanOrEqual(decimal.NewFromInt(int64(status.WarningThreshold)))
	return status, nil
}

func (s *BudgetService) Set(ctx context.Context, userID string, in BudgetInput) (*domain.Budget, error) {
	if in.MonthlyBudget == nil {
		return nil, invalid("monthlyBudget", "Monthly budget is required")
	}
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	return s.budgets.UpsertBudget(ctx, userID, in.MonthlyBudget.Round(2), in.WarningThreshold)
}

// History covers the trailing twelve months, oldest first, each summed on its own range.
func (s *BudgetService) History(ctx context.Context, userID string) ([]domain.BudgetHistoryEntry, error) {
	b, err := s.budgets.GetBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := decimal.Zero
	if b != nil {
		limit = b.MonthlyBudget
	}

	year, month := s.clock.CurrentMonth()
	current, _ := domain.MonthRange(year, month)

	entries := make([]domain.BudgetHistoryEntry, historyMonths)
	g, gctx := errgroup.WithContext(ctx)
	for i := range entries {
		first := current.AddDate(0, i-historyMonths+1, 0)
		g.Go(func() error {
			from, to := domain.MonthRange(first.Year(), first.Month())
			spent, err := s.expenses.SumExpenses(gctx, userID, from, to)
			if err != nil {
				return err
			}
			remaining, pct, exceeded := usage(limit, spent)
			entries[i] = domain.BudgetHistoryEntry{
				Month:          from.Format("Jan 2006"),
				Budget:         limit,
				Spent:          spent,
				Remaining:      remaining,
				PercentageUsed: pct.Round(2),
				IsExceeded:     exceeded,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
