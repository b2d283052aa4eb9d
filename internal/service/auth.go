package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/domain"
	"expense-tracker/internal/notify"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/validator"

	"github.com/shopspring/decimal"
)

const verificationTTL = 24 * time.Hour

type AuthConfig struct {
	RequireEmailVerification bool
	PasswordResetEnabled     bool
}

// Profile is the user as returned to clients, budget settings included.
type Profile struct {
	ID                     string           `json:"id"`
	Name                   string           `json:"name"`
	Email                  string           `json:"email"`
	Role                   domain.Role      `json:"role"`
	IsVerified             bool             `json:"isVerified"`
	MonthlyBudget          *decimal.Decimal `json:"monthlyBudget"`
	BudgetWarningThreshold int              `json:"budgetWarningThreshold"`
}

type RegisterInput struct {
	Name     string `json:"name" validate:"notblank,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
	Role     string `json:"role" validate:"omitempty,role"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,role"`
}

type ResetPasswordInput struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"newPassword" validate:"required,min=6,maxbytes=72"`
}

// AuthResult carries a token only when the user may log in right away.
type AuthResult struct {
	Message string
	Token   string
	User    Profile
}

type AuthService struct {
	users    storage.UserStorage
	budgets  storage.BudgetStorage
	tokens   *auth.TokenService
	notifier notify.Notifier
	cfg      AuthConfig
	clock    Clock
}

func NewAuthService(users storage.UserStorage, budgets storage.BudgetStorage, tokens *auth.TokenService,
	notifier notify.Notifier, cfg AuthConfig, clock Clock) *AuthService {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &AuthService{users: users, budgets: budgets, tokens: tokens, notifier: notifier, cfg: cfg, clock: clock}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) profile(ctx context.Context, u *domain.User) (Profile, error) {
	p := Profile{
		ID:                     u.ID,
		Name:                   u.Name,
		Email:                  u.Email,
		Role:                   u.Role,
		IsVerified:             u.IsVerified,
		BudgetWarningThreshold: domain.DefaultWarningThreshold,
	}
	b, err := s.budgets.GetBudget(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}
	if b != nil {
		amount := b.MonthlyBudget
		p.MonthlyBudget = &amount
		p.BudgetWarningThreshold = b.WarningThreshold
	}
	return p, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	if domain.Role(in.Role) == domain.RoleAdmin {
		return nil, domain.E(domain.ErrForbidden, "Admin accounts cannot be self-registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsVerified:   !s.cfg.RequireEmailVerification,
	}

	var token string
	if s.cfg.RequireEmailVerification {
		var tokenHash string
		token, tokenHash, err = auth.NewVerificationToken()
		if err != nil {
			return nil, err
		}
		expires := s.clock.now().Add(verificationTTL).UTC()
		u.VerificationTokenHash = tokenHash
		u.VerificationTokenExpires = &expires
	}

	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.E(domain.ErrConflict, "Email already registered")
		}
		return nil, err
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID, "verification_required", s.cfg.RequireEmailVerification)

	p, err := s.profile(ctx, u)
	if err != nil {
		return nil, err
	}

	if s.cfg.RequireEmailVerification {
		msg := "Registration successful. Please contact support to verify your account."
		if s.notifier.SendVerificationEmail(ctx, u.Email, token) {
			msg = "Registration successful. Please check your email to verify your account."
		}
		return &AuthResult{Message: msg, User: p}, nil
	}

	jwtToken, err := s.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Message: "Registration successful", Token: jwtToken, User: p}, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validator.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.E(domain.ErrInvalidCredentials, "Invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, in.Password) {
		return nil, domain.E(domain.ErrInvalidCredentials, "Invalid credentials")
	}
	if in.Role != "" && domain.Role(in.Role) != u.Role {
		return nil, domain.E(domain.ErrInvalidCredentials, "Invalid credentials or role")
	}
	if s.cfg.RequireEmailVerification && !u.IsVerified {
		return nil, domain.E(domain.ErrEmailNotVerified,
			"Please verify your email first. Check your inbox for the verification link.")
	}

	token, err := s.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	p, err := s.profile(ctx, u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Message: "Login successful", Token: token, User: p}, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid("token", "Verification token is required")
	}
	u, err := s.users.GetUserByVerificationToken(ctx, auth.HashToken(token))
	if errors.Is(err, domain.ErrNotFound) {
		return invalid("token", "Invalid or expired verification token")
	}
	if err != nil {
		return err
	}
	if u.VerificationTokenExpires == nil || s.clock.now().After(*u.VerificationTokenExpires) {
		return invalid("token", "Invalid or expired verification token")
	}
	if err := s.users.MarkVerified(ctx, u.ID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Email verified", "user_id", u.ID)
	return nil
}

// PasswordResetEnabled tells the HTTP layer whether to expose the public reset route.
func (s *AuthService) PasswordResetEnabled() bool {
	return s.cfg.PasswordResetEnabled
}

func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validator.Struct(in); err != nil {
		return err
	}
	u, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.E(domain.ErrNotFound, "User not found")
	}
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Password reset", "user_id", u.ID)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.E(domain.ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, err
	}
	p, err := s.profile(ctx, u)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
