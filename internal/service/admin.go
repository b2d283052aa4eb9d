package service

import (
	"context"
	"errors"
	"log/slog"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"

	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	TotalUsers    int             `json:"totalUsers"`
	TotalExpenses int             `json:"totalExpenses"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type Dashboard struct {
	Users    []domain.User         `json:"users"`
	Expenses []domain.AdminExpense `json:"expenses"`
	Stats    DashboardStats        `json:"stats"`
}

type AdminStorage interface {
	storage.UserStorage
	storage.ExpenseStorage
}

type AdminService struct {
	store AdminStorage
}

func NewAdminService(store AdminStorage) *AdminService {
	return &AdminService{store: store}
}

func userNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.E(domain.ErrNotFound, "User not found")
	}
	return err
}

// Dashboard lists every user and every expense joined with its owner.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.ListAllExpenses(ctx)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]domain.User, len(users))
	for _, u := range users {
		owners[u.ID] = u
	}

	d := &Dashboard{
		Users:    users,
		Expenses: make([]domain.AdminExpense, 0, len(expenses)),
		Stats:    DashboardStats{TotalUsers: len(users), TotalExpenses: len(expenses), TotalAmount: decimal.Zero},
	}
	if d.Users == nil {
		d.Users = []domain.User{}
	}
	for _, e := range expenses {
		owner := owners[e.UserID]
		d.Expenses = append(d.Expenses, domain.AdminExpense{Expense: e, OwnerName: owner.Name, OwnerEmail: owner.Email})
		d.Stats.TotalAmount = d.Stats.TotalAmount.Add(e.Amount)
	}
	return d, nil
}

// DeleteUser removes a user with all of their data. Admins cannot remove themselves.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return domain.E(domain.ErrForbidden, "You cannot delete your own account")
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return userNotFound(err)
	}
	slog.InfoContext(ctx, "User deleted", "user_id", userID, "by", actorID)
	return nil
}

func (s *AdminService) userByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, userNotFound(err)
	}
	return u, nil
}

func (s *AdminService) DeleteUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteUser(ctx, u.ID); err != nil {
		return nil, userNotFound(err)
	}
	return u, nil
}

func (s *AdminService) SetRole(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, invalid("role", "Role must be either user or admin")
	}
	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRole(ctx, u.ID, role); err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

func (s *AdminService) VerifyUser(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkVerified(ctx, u.ID); err != nil {
		return nil, err
	}
	u.IsVerified = true
	return u, nil
}
