package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/storage/storagetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestNewRepairsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, usersFile), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, expensesFile), []byte(""), 0o644))

	s, err := New(dir)
	require.NoError(t, err)

	for _, name := range []string{usersFile, expensesFile, budgetsFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.JSONEq(t, "[]", string(data), name)
	}
	n, err := s.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewKeepsExistingData(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"_id":"e1","userId":"u1","description":"Bus","amount":2.5,"category":"Transport","date":"2023-06-01T00:00:00.000Z","createdAt":"2023-06-01T08:00:00Z"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, expensesFile), []byte(legacy), 0o644))

	s, err := New(dir)
	require.NoError(t, err)

	e, err := s.GetExpense(context.Background(), "u1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", e.Date.Format(domain.DateLayout))
	assert.True(t, decimal.RequireFromString("2.5").Equal(e.Amount))
	assert.Equal(t, domain.LegacyCategoryTransport, e.Category)
}

func TestReset(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &domain.User{Name: "A", Email: "a@example.com", Role: domain.RoleUser}))

	require.NoError(t, s.Reset())

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := &domain.Expense{
				UserID:      "u1",
				Description: "Parallel",
				Amount:      decimal.NewFromInt(1),
				Category:    domain.CategoryOther,
				Date:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			assert.NoError(t, s.CreateExpense(ctx, e))
		}()
	}
	wg.Wait()

	list, err := s.ListExpenses(ctx, "u1", domain.ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

// files as the old Node server wrote them: numeric user ids under "id",
// numeric owner ids on expenses and the budget kept on the user
const (
	oldUsers = `[{"id":1709876543210,"name":"Asha","email":"asha@example.com","password":"hash","role":"user",
		"createdAt":"2024-03-08T05:42:23.210Z","monthlyBudget":1000,"budgetWarningThreshold":75}]`
	oldExpenses = `[
		{"_id":"1709876600000","userId":1709876543210,"description":"Bus pass","amount":30,"category":"Transport",
		 "date":"2024-03-10T00:00:00.000Z","createdAt":"2024-03-10T08:00:00.000Z"},
		{"_id":"1709876700000","userId":1709876543210,"description":"Lunch","amount":12.5,"category":"Food",
		 "date":"2024-03-11T00:00:00.000Z","createdAt":"2024-03-11T13:00:00.000Z"}]`
)

func TestReadsOldServerFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, usersFile), []byte(oldUsers), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, expensesFile), []byte(oldExpenses), 0o644))
	ctx := context.Background()

	s, err := New(dir)
	require.NoError(t, err)

	u, err := s.GetUserByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1709876543210", u.ID)

	expenses, err := s.ListExpenses(ctx, u.ID, domain.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, "1709876700000", expenses[0].ID)
	assert.Equal(t, domain.LegacyCategoryTransport, expenses[1].Category)

	b, err := s.GetBudget(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, decimal.NewFromInt(1000).Equal(b.MonthlyBudget))
	assert.Equal(t, 75, b.WarningThreshold)

	// a rewrite keeps the record readable under the new key
	require.NoError(t, s.SetRole(ctx, u.ID, domain.RoleAdmin))
	u, err = s.GetUserByID(ctx, "1709876543210")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)

	// setting a budget keeps the old threshold
	b, err = s.UpsertBudget(ctx, u.ID, decimal.NewFromInt(1200), nil)
	require.NoError(t, err)
	assert.Equal(t, 75, b.WarningThreshold)
	assert.True(t, decimal.NewFromInt(1200).Equal(b.MonthlyBudget))
}

func TestFlexID(t *testing.T) {
	for in, want := range map[string]string{`"abc"`: "abc", `42`: "42", `1709876543210`: "1709876543210", `null`: ""} {
		var id flexID
		require.NoError(t, id.UnmarshalJSON([]byte(in)), in)
		assert.Equal(t, want, string(id), in)
	}
	var id flexID
	assert.Error(t, id.UnmarshalJSON([]byte(`{}`)))
}
