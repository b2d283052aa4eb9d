package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-01-31", "2024-01-31", true},
		{" 2024-02-29 ", "2024-02-29", true},
		{"2024-03-05T23:30:00Z", "2024-03-05", true},
		{"2024-03-05T23:30:00+05:30", "2024-03-05", true},
		{"2024-03-05T10:00:00", "2024-03-05", true},
		{"2024-13-01", "", false},
		{"yesterday", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidDate, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.Format(DateLayout), tc.in)
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestMonthRange(t *testing.T) {
	first, last := MonthRange(2024, time.February)
	assert.Equal(t, "2024-02-01", first.Format(DateLayout))
	assert.Equal(t, "2024-02-29", last.Format(DateLayout))

	first, last = MonthRange(2023, time.December)
	assert.Equal(t, "2023-12-01", first.Format(DateLayout))
	assert.Equal(t, "2023-12-31", last.Format(DateLayout))
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, LegacyCategoryTransport.Valid())
	assert.False(t, Category("food").Valid())
}

func TestExpenseFilterMatch(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	f := ExpenseFilter{StartDate: &start, EndDate: &end, Category: CategoryFood}

	assert.True(t, f.Match(Expense{Date: end, Category: CategoryFood}), "end date is inclusive")
	assert.True(t, f.Match(Expense{Date: start, Category: CategoryFood}), "start date is inclusive")
	assert.False(t, f.Match(Expense{Date: end.AddDate(0, 0, 1), Category: CategoryFood}))
	assert.False(t, f.Match(Expense{Date: start, Category: CategoryBills}))
	assert.True(t, ExpenseFilter{}.Match(Expense{Date: start, Category: CategoryBills}))
}

func TestExpensePatchApply(t *testing.T) {
	e := Expense{Description: "Lunch", Amount: decimal.NewFromInt(10), Category: CategoryFood}
	amount := decimal.RequireFromString("12.50")
	ExpensePatch{Amount: &amount}.Apply(&e)

	assert.Equal(t, "Lunch", e.Description)
	assert.True(t, e.Amount.Equal(amount))
	assert.Equal(t, CategoryFood, e.Category)
}

func TestValidationError(t *testing.T) {
	verr := &ValidationError{Message: "Validation failed"}
	assert.NoError(t, verr.OrNil())

	verr.Add("amount", "Amount must be a positive number")
	err := verr.OrNil()
	require.Error(t, err)

	var target *ValidationError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "Validation failed: amount: Amount must be a positive number", err.Error())
}

func TestErrorWrapsKind(t *testing.T) {
	err := E(ErrNotFound, "Expense not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Expense not found", err.Error())

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Expense not found", de.Message)
}
