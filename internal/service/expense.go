package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/validator"

	"github.com/shopspring/decimal"
)

// ExpenseInput amounts are stored rounded to cents, so anything under 0.01 is refused.
type ExpenseInput struct {
	Description string          `json:"description" validate:"notblank,min=3,max=200"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0.01"`
	Category    string          `json:"category" validate:"category"`
	Date        string          `json:"date" validate:"omitempty,isodate"`
}

// ExpenseUpdate is a partial update; absent fields keep their stored value.
type ExpenseUpdate struct {
	Description *string          `json:"description" validate:"omitempty,notblank,min=3,max=200"`
	Amount      *decimal.Decimal `json:"amount" validate:"omitempty,gte=0.01"`
	Category    *string          `json:"category" validate:"omitempty,category"`
	Date        *string          `json:"date" validate:"omitempty,isodate"`
}

type ExpenseService struct {
	store storage.ExpenseStorage
	clock Clock
}

func NewExpenseService(store storage.ExpenseStorage, clock Clock) *ExpenseService {
	return &ExpenseService{store: store, clock: clock}
}

func expenseNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.E(domain.ErrNotFound, "Expense not found")
	}
	return err
}

// ParseFilter turns query parameters into a filter. Empty strings impose no constraint.
func ParseFilter(startDate, endDate, category string) (domain.ExpenseFilter, error) {
	var f domain.ExpenseFilter
	verr := &domain.ValidationError{Message: "Invalid filter"}
	if startDate != "" {
		d, err := domain.ParseDate(startDate)
		if err != nil {
			verr.Add("startDate", "Invalid date format")
		} else {
			f.StartDate = &d
		}
	}
	if endDate != "" {
		d, err := domain.ParseDate(endDate)
		if err != nil {
			verr.Add("endDate", "Invalid date format")
		} else {
			f.EndDate = &d
		}
	}
	if category != "" {
		c := domain.Category(category)
		if !c.Valid() {
			verr.Add("category", "Invalid category")
		}
		f.Category = c
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		verr.Add("startDate", "Start date must not be after end date")
	}
	if err := verr.OrNil(); err != nil {
		return domain.ExpenseFilter{}, err
	}
	return f, nil
}

func (s *ExpenseService) List(ctx context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	items, err := s.store.ListExpenses(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Expense{}
	}
	return items, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (*domain.Expense, error) {
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return nil, expenseNotFound(err)
	}
	return e, nil
}

func (s *ExpenseService) Create(ctx context.Context, userID string, in ExpenseInput) (*domain.Expense, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := validator.Struct(in); err != nil {
		return nil, err
	}

	date := s.clock.Today()
	if in.Date != "" {
		// already checked by the isodate tag
		date, _ = domain.ParseDate(in.Date)
	}

	e := &domain.Expense{
		UserID:      userID,
		Description: in.Description,
		Amount:      in.Amount.Round(2),
		Category:    domain.Category(in.Category),
		Date:        date,
	}
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *ExpenseService) Update(ctx context.Context, userID, id string, in ExpenseUpdate) (*domain.Expense, error) {
	if in.Description != nil {
		trimmed := strings.TrimSpace(*in.Description)
		in.Description = &trimmed
	}
	if err := validator.Struct(in); err != nil {
		return nil, err
	}

	var patch domain.ExpensePatch
	patch.Description = in.Description
	if in.Amount != nil {
		amount := in.Amount.Round(2)
		patch.Amount = &amount
	}
	if in.Category != nil {
		c := domain.Category(*in.Category)
		patch.Category = &c
	}
	if in.Date != nil {
		d, _ := domain.ParseDate(*in.Date)
		patch.Date = &d
	}

	e, err := s.store.UpdateExpense(ctx, userID, id, patch)
	if err != nil {
		return nil, expenseNotFound(err)
	}
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	return expenseNotFound(s.store.DeleteExpense(ctx, userID, id))
}

// MonthlySummary groups every expense of the user by calendar month, newest month first.
// Categories inside a month appear in the order they were first seen.
func (s *ExpenseService) MonthlySummary(ctx context.Context, userID string) ([]domain.MonthlySummary, error) {
	items, err := s.store.ListExpenses(ctx, userID, domain.ExpenseFilter{})
	if err != nil {
		return nil, err
	}
	return summarize(items), nil
}

func summarize(items []domain.Expense) []domain.MonthlySummary {
	type key struct {
		year  int
		month time.Month
	}
	out := []domain.MonthlySummary{}
	months := map[key]int{}
	categories := map[key]map[domain.Category]int{}

	for _, e := range items {
		k := key{e.Date.Year(), e.Date.Month()}
		i, ok := months[k]
		if !ok {
			i = len(out)
			months[k] = i
			categories[k] = map[domain.Category]int{}
			out = append(out, domain.MonthlySummary{
				Year:        k.year,
				Month:       int(k.month),
				TotalAmount: decimal.Zero,
				ByCategory:  []domain.CategoryTotal{},
			})
		}
		m := &out[i]
		m.TotalAmount = m.TotalAmount.Add(e.Amount)
		m.TotalCount++

		j, ok := categories[k][e.Category]
		if !ok {
			j = len(m.ByCategory)
			categories[k][e.Category] = j
			m.ByCategory = append(m.ByCategory, domain.CategoryTotal{Category: e.Category, Amount: decimal.Zero})
		}
		m.ByCategory[j].Amount = m.ByCategory[j].Amount.Add(e.Amount)
		m.ByCategory[j].Count++
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}
