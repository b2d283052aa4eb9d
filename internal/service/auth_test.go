package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"expense-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	delivered bool
	email     string
	token     string
}

func (r *recordingNotifier) SendVerificationEmail(_ context.Context, email, token string) bool {
	r.email, r.token = email, token
	return r.delivered
}

func TestRegisterAndLogin(t *testing.T) {
	store := newStore(t)
	tokens := newTokens()
	svc := NewAuthService(store, store, tokens, nil, AuthConfig{}, fixedClock(testNow))
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: " Asha ", Email: " Asha@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Registration successful", res.Message)
	assert.Equal(t, "asha@example.com", res.User.Email)
	assert.Equal(t, "Asha", res.User.Name)
	assert.Equal(t, domain.RoleUser, res.User.Role)
	assert.Equal(t, domain.DefaultWarningThreshold, res.User.BudgetWarningThreshold)
	assert.Nil(t, res.User.MonthlyBudget)

	claims, err := tokens.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	_, err = svc.Register(ctx, RegisterInput{Name: "Other", Email: "asha@example.com", Password: "secret2"})
	requireKind(t, err, domain.ErrConflict, "Email already registered")

	login, err := svc.Login(ctx, LoginInput{Email: "ASHA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	_, err = svc.Login(ctx, LoginInput{Email: "asha@example.com", Password: "wrong"})
	requireKind(t, err, domain.ErrInvalidCredentials, "Invalid credentials")

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
	requireKind(t, err, domain.ErrInvalidCredentials, "Invalid credentials")

	_, err = svc.Login(ctx, LoginInput{Email: "asha@example.com", Password: "secret1", Role: "admin"})
	requireKind(t, err, domain.ErrInvalidCredentials, "Invalid credentials or role")
}

func TestRegisterValidation(t *testing.T) {
	store := newStore(t)
	svc := NewAuthService(store, store, newTokens(), nil, AuthConfig{}, fixedClock(testNow))
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "not-an-email", Password: "123"})
	requireInvalid(t, err, "name", "Name must be between 2 and 50 characters")
	requireInvalid(t, err, "email", "Please provide a valid email")
	requireInvalid(t, err, "password", "Password must be at least 6 characters")

	// bcrypt refuses more than 72 bytes; ä is two bytes
	_, err = svc.Register(ctx, RegisterInput{Name: "Long", Email: "long@example.com", Password: strings.Repeat("a", 80)})
	requireInvalid(t, err, "password", "Password must be at most 72 bytes")
	_, err = svc.Register(ctx, RegisterInput{Name: "Long", Email: "long@example.com", Password: strings.Repeat("ä", 40)})
	requireInvalid(t, err, "password", "Password must be at most 72 bytes")
	_, err = svc.Register(ctx, RegisterInput{Name: "Long", Email: "long@example.com", Password: strings.Repeat("a", 72)})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1", Role: "admin"})
	requireKind(t, err, domain.ErrForbidden, "Admin accounts cannot be self-registered")
}

func TestEmailVerificationFlow(t *testing.T) {
	store := newStore(t)
	notifier := &recordingNotifier{delivered: true}
	svc := NewAuthService(store, store, newTokens(), notifier, AuthConfig{RequireEmailVerification: true}, fixedClock(testNow))
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: "Ravi", Email: "ravi@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Empty(t, res.Token)
	assert.Equal(t, "Registration successful. Please check your email to verify your account.", res.Message)
	assert.Equal(t, "ravi@example.com", notifier.email)
	require.NotEmpty(t, notifier.token)

	_, err = svc.Login(ctx, LoginInput{Email: "ravi@example.com", Password: "secret1"})
	requireKind(t, err, domain.ErrEmailNotVerified,
		"Please verify your email first. Check your inbox for the verification link.")

	requireInvalid(t, svc.VerifyEmail(ctx, ""), "token", "Verification token is required")
	requireInvalid(t, svc.VerifyEmail(ctx, "bogus"), "token", "Invalid or expired verification token")

	require.NoError(t, svc.VerifyEmail(ctx, notifier.token))
	// the token is single use
	requireInvalid(t, svc.VerifyEmail(ctx, notifier.token), "token", "Invalid or expired verification token")

	login, err := svc.Login(ctx, LoginInput{Email: "ravi@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, login.User.IsVerified)
}

func TestVerificationTokenExpires(t *testing.T) {
	store := newStore(t)
	notifier := &recordingNotifier{}
	cfg := AuthConfig{RequireEmailVerification: true}
	svc := NewAuthService(store, store, newTokens(), notifier, cfg, fixedClock(testNow))
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Name: "Mei", Email: "mei@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Registration successful. Please contact support to verify your account.", res.Message)

	later := NewAuthService(store, store, newTokens(), notifier, cfg, fixedClock(testNow.Add(25*time.Hour)))
	requireInvalid(t, later.VerifyEmail(ctx, notifier.token), "token", "Invalid or expired verification token")
}

func TestResetPasswordAndMe(t *testing.T) {
	store := newStore(t)
	svc := NewAuthService(store, store, newTokens(), nil, AuthConfig{PasswordResetEnabled: true}, fixedClock(testNow))
	ctx := context.Background()
	u := mustUser(t, store, "lee@example.com")

	err := svc.ResetPassword(ctx, ResetPasswordInput{Email: "ghost@example.com", NewPassword: "newpass"})
	requireKind(t, err, domain.ErrNotFound, "User not found")

	err = svc.ResetPassword(ctx, ResetPasswordInput{Email: "lee@example.com", NewPassword: "123"})
	requireInvalid(t, err, "newPassword", "Password must be at least 6 characters")

	err = svc.ResetPassword(ctx, ResetPasswordInput{Email: "lee@example.com", NewPassword: strings.Repeat("x", 73)})
	requireInvalid(t, err, "newPassword", "Password must be at most 72 bytes")

	require.NoError(t, svc.ResetPassword(ctx, ResetPasswordInput{Email: "lee@example.com", NewPassword: "newpass"}))
	_, err = svc.Login(ctx, LoginInput{Email: "lee@example.com", Password: "newpass"})
	require.NoError(t, err)

	me, err := svc.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "lee@example.com", me.Email)

	_, err = svc.Me(ctx, "missing")
	requireKind(t, err, domain.ErrNotFound, "User not found")
}
