package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/config"
	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage/jsonfile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// 15 March 2024, mid-afternoon
var testNow = time.Date(2024, time.March, 15, 14, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock {
	return Clock{Now: func() time.Time { return t }, Location: time.UTC}
}

func newStore(t *testing.T) *jsonfile.Store {
	t.Helper()
	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTokens() *auth.TokenService {
	return auth.NewTokenService(config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
}

func mustUser(t *testing.T, store *jsonfile.Store, email string) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)
	u := &domain.User{Name: "Test", Email: email, PasswordHash: hash, Role: domain.RoleUser, IsVerified: true}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func mustExpense(t *testing.T, store *jsonfile.Store, userID, amount string, cat domain.Category, date string) *domain.Expense {
	t.Helper()
	d, err := domain.ParseDate(date)
	require.NoError(t, err)
	e := &domain.Expense{
		UserID:      userID,
		Description: "Something",
		Amount:      decimal.RequireFromString(amount),
		Category:    cat,
		Date:        d,
	}
	require.NoError(t, store.CreateExpense(context.Background(), e))
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireKind(t *testing.T, err error, kind error, message string) {
	t.Helper()
	require.ErrorIs(t, err, kind)
	var de *domain.Error
	require.True(t, errors.As(err, &de), "want *domain.Error, got %v", err)
	require.Equal(t, message, de.Message)
}

func requireInvalid(t *testing.T, err error, field, message string) {
	t.Helper()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "want *domain.ValidationError, got %v", err)
	for _, f := range verr.Fields {
		if f.Field == field {
			require.Equal(t, message, f.Message)
			return
		}
	}
	t.Fatalf("no error for field %q in %v", field, verr.Fields)
}
