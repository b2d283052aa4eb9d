package service

import (
	"context"
	"testing"
	"time"

	"expense-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpenseCreate(t *testing.T) {
	store := newStore(t)
	svc := NewExpenseService(store, fixedClock(testNow))
	ctx := context.Background()

	t.Run("defaults date to today and trims description", func(t *testing.T) {
		e, err := svc.Create(ctx, "u1", ExpenseInput{Description: "  Lunch  ", Amount: dec("12.345"), Category: "Food"})
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "Lunch", e.Description)
		assert.True(t, dec("12.35").Equal(e.Amount))
		assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), e.Date)
	})

	t.Run("uses given date", func(t *testing.T) {
		e, err := svc.Create(ctx, "u1", ExpenseInput{Description: "Train", Amount: dec("40"), Category: "Travelling", Date: "2024-01-31"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), e.Date)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := svc.Create(ctx, "u1", ExpenseInput{Description: " ab ", Amount: dec("0"), Category: "Transport", Date: "31/01/2024"})
		requireInvalid(t, err, "description", "Description must be between 3 and 200 characters")
		requireInvalid(t, err, "amount", "Amount must be a positive number")
		requireInvalid(t, err, "category", "Invalid category")
		requireInvalid(t, err, "date", "Invalid date format")
	})

	t.Run("rejects amounts that round to zero", func(t *testing.T) {
		for _, amount := range []string{"0.001", "0.004", "0.0099"} {
			_, err := svc.Create(ctx, "u1", ExpenseInput{Description: "Gum", Amount: dec(amount), Category: "Food"})
			requireInvalid(t, err, "amount", "Amount must be a positive number")
		}
		list, err := svc.List(ctx, "u1", domain.ExpenseFilter{Category: domain.CategoryFood})
		require.NoError(t, err)
		for _, e := range list {
			assert.True(t, e.Amount.IsPositive(), "stored amount %s", e.Amount)
		}
	})

	t.Run("accepts one cent", func(t *testing.T) {
		e, err := svc.Create(ctx, "u1", ExpenseInput{Description: "Gum", Amount: dec("0.01"), Category: "Food"})
		require.NoError(t, err)
		assert.True(t, dec("0.01").Equal(e.Amount))
	})
}

func TestExpenseUpdateKeepsUnsetFields(t *testing.T) {
	store := newStore(t)
	svc := NewExpenseService(store, fixedClock(testNow))
	ctx := context.Background()
	e := mustExpense(t, store, "u1", "10", domain.CategoryFood, "2024-03-01")

	amount := dec("25.5")
	updated, err := svc.Update(ctx, "u1", e.ID, ExpenseUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.Amount))
	assert.Equal(t, e.Description, updated.Description)
	assert.Equal(t, e.Category, updated.Category)
	assert.Equal(t, e.Date, updated.Date)

	tiny := dec("0.001")
	_, err = svc.Update(ctx, "u1", e.ID, ExpenseUpdate{Amount: &tiny})
	requireInvalid(t, err, "amount", "Amount must be a positive number")

	negative := dec("-3")
	_, err = svc.Update(ctx, "u1", e.ID, ExpenseUpdate{Amount: &negative})
	requireInvalid(t, err, "amount", "Amount must be a positive number")

	blank := "   "
	_, err = svc.Update(ctx, "u1", e.ID, ExpenseUpdate{Description: &blank})
	requireInvalid(t, err, "description", "Description is required")
}

func TestExpenseOwnership(t *testing.T) {
	store := newStore(t)
	svc := NewExpenseService(store, fixedClock(testNow))
	ctx := context.Background()
	e := mustExpense(t, store, "owner", "10", domain.CategoryFood, "2024-03-01")

	_, err := svc.Get(ctx, "intruder", e.ID)
	requireKind(t, err, domain.ErrNotFound, "Expense not found")

	desc := "Hijacked"
	_, err = svc.Update(ctx, "intruder", e.ID, ExpenseUpdate{Description: &desc})
	requireKind(t, err, domain.ErrNotFound, "Expense not found")

	err = svc.Delete(ctx, "intruder", e.ID)
	requireKind(t, err, domain.ErrNotFound, "Expense not found")

	got, err := svc.Get(ctx, "owner", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Something", got.Description)

	require.NoError(t, svc.Delete(ctx, "owner", e.ID))
	_, err = svc.Get(ctx, "owner", e.ID)
	requireKind(t, err, domain.ErrNotFound, "Expense not found")
}

func TestExpenseListFilter(t *testing.T) {
	store := newStore(t)
	svc := NewExpenseService(store, fixedClock(testNow))
	ctx := context.Background()
	mustExpense(t, store, "u1", "10", domain.CategoryFood, "2024-01-01")
	mustExpense(t, store, "u1", "20", domain.CategoryFood, "2024-01-31")
	mustExpense(t, store, "u1", "30", domain.CategoryBills, "2024-01-15")
	mustExpense(t, store, "u1", "40", domain.CategoryFood, "2024-02-01")
	mustExpense(t, store, "u2", "50", domain.CategoryFood, "2024-01-10")

	filter, err := ParseFilter("2024-01-01", "2024-01-31", "Food")
	require.NoError(t, err)
	items, err := svc.List(ctx, "u1", filter)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2024-01-31", items[0].Date.Format(domain.DateLayout))
	assert.Equal(t, "2024-01-01", items[1].Date.Format(domain.DateLayout))

	none, err := svc.List(ctx, "nobody", domain.ExpenseFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ExpenseFilter{}, f)

	_, err = ParseFilter("yesterday", "", "")
	requireInvalid(t, err, "startDate", "Invalid date format")

	_, err = ParseFilter("", "", "Groceries")
	requireInvalid(t, err, "category", "Invalid category")

	_, err = ParseFilter("2024-02-01", "2024-01-01", "")
	requireInvalid(t, err, "startDate", "Start date must not be after end date")
}

func TestMonthlySummary(t *testing.T) {
	store := newStore(t)
	svc := NewExpenseService(store, fixedClock(testNow))
	ctx := context.Background()
	mustExpense(t, store, "u1", "10", domain.CategoryFood, "2023-12-05")
	mustExpense(t, store, "u1", "20", domain.CategoryBills, "2024-01-02")
	mustExpense(t, store, "u1", "5.50", domain.CategoryFood, "2024-01-20")
	mustExpense(t, store, "u1", "4.50", domain.CategoryFood, "2024-01-21")

	got, err := svc.MonthlySummary(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	jan := got[0]
	assert.Equal(t, 2024, jan.Year)
	assert.Equal(t, 1, jan.Month)
	assert.True(t, dec("30").Equal(jan.TotalAmount))
	assert.Equal(t, 3, jan.TotalCount)
	require.Len(t, jan.ByCategory, 2)
	assert.Equal(t, domain.CategoryFood, jan.ByCategory[0].Category)
	assert.True(t, dec("10").Equal(jan.ByCategory[0].Amount))
	assert.Equal(t, 2, jan.ByCategory[0].Count)

	assert.Equal(t, 2023, got[1].Year)
	assert.Equal(t, 12, got[1].Month)

	empty, err := svc.MonthlySummary(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
