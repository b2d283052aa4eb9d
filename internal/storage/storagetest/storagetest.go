// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// Factory returns an empty store; the suite closes it after each test.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	suite.Run(t, &StoreSuite{newStore: newStore})
}

type StoreSuite struct {
	suite.Suite
	newStore Factory
	store    storage.Store
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) createUser(email string) *domain.User {
	u := &domain.User{Name: "Test User", Email: email, PasswordHash: "hash", Role: domain.RoleUser}
	s.Require().NoError(s.store.CreateUser(s.ctx, u))
	s.Require().NotEmpty(u.ID)
	return u
}

func (s *StoreSuite) createExpense(userID, desc, amount string, cat domain.Category, d time.Time) *domain.Expense {
	e := &domain.Expense{
		UserID:      userID,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Category:    cat,
		Date:        d,
	}
	s.Require().NoError(s.store.CreateExpense(s.ctx, e))
	s.Require().NotEmpty(e.ID)
	return e
}

func (s *StoreSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
	s.NotEmpty(s.store.Name())
}

func (s *StoreSuite) TestCreateUserRejectsDuplicateEmail() {
	s.createUser("dup@example.com")

	err := s.store.CreateUser(s.ctx, &domain.User{Name: "Other", Email: "dup@example.com", PasswordHash: "x", Role: domain.RoleUser})
	s.ErrorIs(err, domain.ErrConflict)

	n, err := s.store.CountUsers(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *StoreSuite) TestGetUser() {
	u := s.createUser("alice@example.com")

	byID, err := s.store.GetUserByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("alice@example.com", byID.Email)
	s.Equal("hash", byID.PasswordHash)
	s.Equal(domain.RoleUser, byID.Role)
	s.False(byID.IsVerified)

	byEmail, err := s.store.GetUserByEmail(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, byEmail.ID)

	_, err = s.store.GetUserByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.store.GetUserByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestVerificationFlow() {
	u := s.createUser("verify@example.com")
	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	s.Require().NoError(s.store.SetVerificationToken(s.ctx, u.ID, "token-hash", expires))

	found, err := s.store.GetUserByVerificationToken(s.ctx, "token-hash")
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)
	s.Require().NotNil(found.VerificationTokenExpires)
	s.WithinDuration(expires, *found.VerificationTokenExpires, time.Second)

	s.Require().NoError(s.store.MarkVerified(s.ctx, u.ID))
	_, err = s.store.GetUserByVerificationToken(s.ctx, "token-hash")
	s.ErrorIs(err, domain.ErrNotFound)

	verified, err := s.store.GetUserByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.True(verified.IsVerified)
}

func (s *StoreSuite) TestUpdatePasswordAndRole() {
	u := s.createUser("bob@example.com")

	s.Require().NoError(s.store.UpdatePassword(s.ctx, u.ID, "new-hash"))
	s.Require().NoError(s.store.SetRole(s.ctx, u.ID, domain.RoleAdmin))

	got, err := s.store.GetUserByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("new-hash", got.PasswordHash)
	s.Equal(domain.RoleAdmin, got.Role)

	s.ErrorIs(s.store.UpdatePassword(s.ctx, uuid.NewString(), "x"), domain.ErrNotFound)
}

func (s *StoreSuite) TestDeleteUserCascades() {
	alice := s.createUser("alice@example.com")
	bob := s.createUser("bob@example.com")
	s.createExpense(alice.ID, "Lunch", "10", domain.CategoryFood, date(2024, 1, 10))
	kept := s.createExpense(bob.ID, "Taxi", "20", domain.CategoryTravelling, date(2024, 1, 11))
	_, err := s.store.UpsertBudget(s.ctx, alice.ID, decimal.NewFromInt(500), nil)
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteUser(s.ctx, alice.ID))

	_, err = s.store.GetUserByID(s.ctx, alice.ID)
	s.ErrorIs(err, domain.ErrNotFound)
	all, err := s.store.ListAllExpenses(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(kept.ID, all[0].ID)
	b, err := s.store.GetBudget(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.Nil(b)

	users, err := s.store.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 1)

	s.ErrorIs(s.store.DeleteUser(s.ctx, alice.ID), domain.ErrNotFound)
}

func (s *StoreSuite) TestCreateAndGetExpense() {
	u := s.createUser("alice@example.com")
	e := s.createExpense(u.ID, "Groceries", "123.45", domain.CategoryFood, date(2024, 2, 29))
	s.False(e.CreatedAt.IsZero())

	got, err := s.store.GetExpense(s.ctx, u.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Groceries", got.Description)
	s.True(decimal.RequireFromString("123.45").Equal(got.Amount), got.Amount.String())
	s.Equal(domain.CategoryFood, got.Category)
	s.Equal("2024-02-29", got.Date.Format(domain.DateLayout))
	s.Equal(u.ID, got.UserID)
}

func (s *StoreSuite) TestExpensesAreScopedByOwner() {
	alice := s.createUser("alice@example.com")
	bob := s.createUser("bob@example.com")
	e := s.createExpense(alice.ID, "Rent", "900", domain.CategoryBills, date(2024, 3, 1))

	_, err := s.store.GetExpense(s.ctx, bob.ID, e.ID)
	s.ErrorIs(err, domain.ErrNotFound)

	desc := "Hijacked"
	_, err = s.store.UpdateExpense(s.ctx, bob.ID, e.ID, domain.ExpensePatch{Description: &desc})
	s.ErrorIs(err, domain.ErrNotFound)

	s.ErrorIs(s.store.DeleteExpense(s.ctx, bob.ID, e.ID), domain.ErrNotFound)

	got, err := s.store.GetExpense(s.ctx, alice.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Rent", got.Description)

	list, err := s.store.ListExpenses(s.ctx, bob.ID, domain.ExpenseFilter{})
	s.Require().NoError(err)
	s.NotNil(list)
	s.Empty(list)
}

func (s *StoreSuite) TestListExpensesFiltersAndOrder() {
	u := s.createUser("alice@example.com")
	s.createExpense(u.ID, "Dinner", "40", domain.CategoryFood, date(2024, 1, 31))
	s.createExpense(u.ID, "Breakfast", "8", domain.CategoryFood, date(2024, 1, 1))
	s.createExpense(u.ID, "Lunch", "12", domain.CategoryFood, date(2024, 1, 15))
	s.createExpense(u.ID, "Movie", "15", domain.CategoryEntertainment, date(2024, 1, 20))
	s.createExpense(u.ID, "Late snack", "5", domain.CategoryFood, date(2024, 2, 1))
	s.createExpense(u.ID, "Old", "5", domain.CategoryFood, date(2023, 12, 31))

	start, end := date(2024, 1, 1), date(2024, 1, 31)
	got, err := s.store.ListExpenses(s.ctx, u.ID, domain.ExpenseFilter{
		StartDate: &start,
		EndDate:   &end,
		Category:  domain.CategoryFood,
	})
	s.Require().NoError(err)

	var names []string
	for _, e := range got {
		names = append(names, e.Description)
	}
	s.Equal([]string{"Dinner", "Lunch", "Breakfast"}, names)

	all, err := s.store.ListExpenses(s.ctx, u.ID, domain.ExpenseFilter{})
	s.Require().NoError(err)
	s.Len(all, 6)
	s.Equal("Late snack", all[0].Description)
	s.Equal("Old", all[5].Description)
}

func (s *StoreSuite) TestUpdateExpensePreservesUnsetFields() {
	u := s.createUser("alice@example.com")
	e := s.createExpense(u.ID, "Coffee", "3.50", domain.CategoryFood, date(2024, 4, 2))

	amount := decimal.RequireFromString("4.25")
	cat := domain.CategoryOther
	got, err := s.store.UpdateExpense(s.ctx, u.ID, e.ID, domain.ExpensePatch{Amount: &amount, Category: &cat})
	s.Require().NoError(err)
	s.Equal("Coffee", got.Description)
	s.True(amount.Equal(got.Amount))
	s.Equal(domain.CategoryOther, got.Category)
	s.Equal("2024-04-02", got.Date.Format(domain.DateLayout))

	reloaded, err := s.store.GetExpense(s.ctx, u.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Coffee", reloaded.Description)
	s.True(amount.Equal(reloaded.Amount))

	_, err = s.store.UpdateExpense(s.ctx, u.ID, uuid.NewString(), domain.ExpensePatch{Amount: &amount})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestDeleteExpense() {
	u := s.createUser("alice@example.com")
	e := s.createExpense(u.ID, "Coffee", "3.50", domain.CategoryFood, date(2024, 4, 2))

	s.Require().NoError(s.store.DeleteExpense(s.ctx, u.ID, e.ID))
	_, err := s.store.GetExpense(s.ctx, u.ID, e.ID)
	s.ErrorIs(err, domain.ErrNotFound)
	s.ErrorIs(s.store.DeleteExpense(s.ctx, u.ID, e.ID), domain.ErrNotFound)
}

func (s *StoreSuite) TestSumExpensesIsInclusive() {
	u := s.createUser("alice@example.com")
	other := s.createUser("bob@example.com")
	s.createExpense(u.ID, "First day", "10.10", domain.CategoryFood, date(2024, 5, 1))
	s.createExpense(u.ID, "Last day", "20.20", domain.CategoryBills, date(2024, 5, 31))
	s.createExpense(u.ID, "Next month", "99", domain.CategoryBills, date(2024, 6, 1))
	s.createExpense(other.ID, "Not mine", "50", domain.CategoryBills, date(2024, 5, 15))

	from, to := domain.MonthRange(2024, time.May)
	sum, err := s.store.SumExpenses(s.ctx, u.ID, from, to)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("30.30").Equal(sum), sum.String())

	from, to = domain.MonthRange(2023, time.May)
	sum, err = s.store.SumExpenses(s.ctx, u.ID, from, to)
	s.Require().NoError(err)
	s.True(sum.IsZero())
}

func (s *StoreSuite) TestRenameCategory() {
	u := s.createUser("alice@example.com")
	legacy := s.createExpense(u.ID, "Bus", "2", domain.LegacyCategoryTransport, date(2023, 6, 1))
	s.createExpense(u.ID, "Train", "4", domain.LegacyCategoryTransport, date(2023, 6, 2))
	s.createExpense(u.ID, "Lunch", "9", domain.CategoryFood, date(2023, 6, 3))

	n, err := s.store.RenameCategory(s.ctx, domain.LegacyCategoryTransport, domain.CategoryTravelling)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	got, err := s.store.GetExpense(s.ctx, u.ID, legacy.ID)
	s.Require().NoError(err)
	s.Equal(domain.CategoryTravelling, got.Category)

	n, err = s.store.RenameCategory(s.ctx, domain.LegacyCategoryTransport, domain.CategoryTravelling)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StoreSuite) TestBudgetUpsert() {
	u := s.createUser("alice@example.com")

	b, err := s.store.GetBudget(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Nil(b)

	b, err = s.store.UpsertBudget(s.ctx, u.ID, decimal.NewFromInt(1000), nil)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(1000).Equal(b.MonthlyBudget))
	s.Equal(domain.DefaultWarningThreshold, b.WarningThreshold)

	threshold := 65
	_, err = s.store.UpsertBudget(s.ctx, u.ID, decimal.NewFromInt(1200), &threshold)
	s.Require().NoError(err)

	b, err = s.store.UpsertBudget(s.ctx, u.ID, decimal.RequireFromString("1500.50"), nil)
	s.Require().NoError(err)
	s.Equal(65, b.WarningThreshold, "threshold is preserved when not given")

	b, err = s.store.GetBudget(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().NotNil(b)
	s.True(decimal.RequireFromString("1500.50").Equal(b.MonthlyBudget), b.MonthlyBudget.String())
	s.Equal(65, b.WarningThreshold)
}

// RequireEmpty fails t when store already holds users; used by backends sharing a database.
func RequireEmpty(t *testing.T, store storage.Store) {
	t.Helper()
	n, err := store.CountUsers(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
