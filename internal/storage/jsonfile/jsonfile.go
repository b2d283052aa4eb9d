// internal/storage/jsonfile/jsonfile.go
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	usersFile    = "users.json"
	expensesFile = "expenses.json"
	budgetsFile  = "budgets.json"
)

type userRecord struct {
	ID                       string     `json:"_id"`
	Name                     string     `json:"name"`
	Email                    string     `json:"email"`
	Password                 string     `json:"password"`
	Role                     string     `json:"role"`
	IsVerified               bool       `json:"isVerified"`
	VerificationToken        string     `json:"verificationToken,omitempty"`
	VerificationTokenExpires *time.Time `json:"verificationTokenExpires,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`

	// written by the old server only; budgets.json wins once a budget is set here
	MonthlyBudget          *decimal.Decimal `json:"monthlyBudget,omitempty"`
	BudgetWarningThreshold *int             `json:"budgetWarningThreshold,omitempty"`
}

type expenseRecord struct {
	ID          string          `json:"_id"`
	UserID      string          `json:"userId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type budgetRecord struct {
	UserID           string          `json:"userId"`
	MonthlyBudget    decimal.Decimal `json:"monthlyBudget"`
	WarningThreshold int             `json:"budgetWarningThreshold"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Store keeps users, expenses and budgets in three JSON array files.
// Every call re-reads the files it needs and mutations rewrite them whole,
// so one mutex serializes all access within the process.
type Store struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New prepares dir, creating missing files and resetting unreadable ones to [].
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, name := range []string{usersFile, expensesFile, budgetsFile} {
		if err := s.repair(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) repair(name string) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return writeFileAtomic(path, []byte("[]"))
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	var records []json.RawMessage
	if len(strings.TrimSpace(string(data))) == 0 || json.Unmarshal(data, &records) != nil {
		slog.Error("Data file is corrupt, resetting to empty", "file", path)
		return writeFileAtomic(path, []byte("[]"))
	}
	return nil
}

// Reset rewrites every data file as an empty array.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{usersFile, expensesFile, budgetsFile} {
		if err := writeFileAtomic(filepath.Join(s.dir, name), []byte("[]")); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Name() string { return "json" }

func (s *Store) Ping(context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *Store) Close() error { return nil }

func load[T any](s *Store, name string) ([]T, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return items, nil
}

func save[T any](s *Store, name string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return writeFileAtomic(filepath.Join(s.dir, name), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// === UserStorage ===

func (r userRecord) toDomain() domain.User {
	return domain.User{
		ID:                       r.ID,
		Name:                     r.Name,
		Email:                    r.Email,
		PasswordHash:             r.Password,
		Role:                     domain.Role(r.Role),
		IsVerified:               r.IsVerified,
		CreatedAt:                r.CreatedAt,
		VerificationTokenHash:    r.VerificationToken,
		VerificationTokenExpires: r.VerificationTokenExpires,
	}
}

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return err
	}
	for _, existing := range users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	users = append(users, userRecord{
		ID:                       u.ID,
		Name:                     u.Name,
		Email:                    u.Email,
		Password:                 u.PasswordHash,
		Role:                     string(u.Role),
		IsVerified:               u.IsVerified,
		VerificationToken:        u.VerificationTokenHash,
		VerificationTokenExpires: u.VerificationTokenExpires,
		CreatedAt:                u.CreatedAt,
	})
	return save(s, usersFile, users)
}

func (s *Store) findUser(match func(userRecord) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return nil, err
	}
	for _, r := range users {
		if match(r) {
			u := r.toDomain()
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	return s.findUser(func(r userRecord) bool { return r.ID == id })
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.findUser(func(r userRecord) bool { return strings.EqualFold(r.Email, email) })
}

func (s *Store) GetUserByVerificationToken(_ context.Context, tokenHash string) (*domain.User, error) {
	if tokenHash == "" {
		return nil, domain.ErrNotFound
	}
	return s.findUser(func(r userRecord) bool { return r.VerificationToken == tokenHash })
}

func (s *Store) updateUser(id string, mutate func(*userRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == id {
			mutate(&users[i])
			return save(s, usersFile, users)
		}
	}
	return domain.ErrNotFound
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.updateUser(id, func(r *userRecord) { r.Password = passwordHash })
}

func (s *Store) SetVerificationToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	return s.updateUser(id, func(r *userRecord) {
		r.VerificationToken = tokenHash
		r.VerificationTokenExpires = &expires
	})
}

func (s *Store) MarkVerified(_ context.Context, id string) error {
	return s.updateUser(id, func(r *userRecord) {
		r.IsVerified = true
		r.VerificationToken = ""
		r.VerificationTokenExpires = nil
	})
}

func (s *Store) SetRole(_ context.Context, id string, role domain.Role) error {
	return s.updateUser(id, func(r *userRecord) { r.Role = string(role) })
}

func (s *Store) ListUsers(context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(users))
	for _, r := range users {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return err
	}
	kept := users[:0]
	for _, r := range users {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(users) {
		return domain.ErrNotFound
	}

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return err
	}
	keptExpenses := expenses[:0]
	for _, r := range expenses {
		if r.UserID != id {
			keptExpenses = append(keptExpenses, r)
		}
	}

	budgets, err := load[budgetRecord](s, budgetsFile)
	if err != nil {
		return err
	}
	keptBudgets := budgets[:0]
	for _, r := range budgets {
		if r.UserID != id {
			keptBudgets = append(keptBudgets, r)
		}
	}

	if err := save(s, expensesFile, keptExpenses); err != nil {
		return err
	}
	if err := save(s, budgetsFile, keptBudgets); err != nil {
		return err
	}
	return save(s, usersFile, kept)
}

func (s *Store) CountUsers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return 0, err
	}
	return int64(len(users)), nil
}

// === ExpenseStorage ===

func (r expenseRecord) toDomain() domain.Expense {
	// unparsable legacy dates sort last instead of failing the whole list
	date, _ := domain.ParseDate(r.Date)
	return domain.Expense{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description,
		Amount:      r.Amount,
		Category:    domain.Category(r.Category),
		Date:        date,
		CreatedAt:   r.CreatedAt,
	}
}

func toExpenseRecord(e domain.Expense) expenseRecord {
	return expenseRecord{
		ID:          e.ID,
		UserID:      e.UserID,
		Description: e.Description,
		Amount:      e.Amount,
		Category:    string(e.Category),
		Date:        e.Date.Format(domain.DateLayout),
		CreatedAt:   e.CreatedAt,
	}
}

func (s *Store) CreateExpense(_ context.Context, e *domain.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	expenses = append(expenses, toExpenseRecord(*e))
	return save(s, expensesFile, expenses)
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return nil, err
	}
	for _, r := range expenses {
		if r.ID == id && r.UserID == userID {
			e := r.toDomain()
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListExpenses(_ context.Context, userID string, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return nil, err
	}
	out := []domain.Expense{}
	for _, r := range expenses {
		if r.UserID != userID {
			continue
		}
		e := r.toDomain()
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	storage.SortExpenses(out)
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, userID, id string, patch domain.ExpensePatch) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return nil, err
	}
	for i, r := range expenses {
		if r.ID != id || r.UserID != userID {
			continue
		}
		e := r.toDomain()
		patch.Apply(&e)
		expenses[i] = toExpenseRecord(e)
		if err := save(s, expensesFile, expenses); err != nil {
			return nil, err
		}
		return &e, nil
	}
	return nil, domain.ErrNotFound
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return err
	}
	for i, r := range expenses {
		if r.ID == id && r.UserID == userID {
			expenses = append(expenses[:i], expenses[i+1:]...)
			return save(s, expensesFile, expenses)
		}
	}
	return domain.ErrNotFound
}

func (s *Store) SumExpenses(_ context.Context, userID string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return decimal.Zero, err
	}
	filter := domain.ExpenseFilter{StartDate: &from, EndDate: &to}
	total := decimal.Zero
	for _, r := range expenses {
		if r.UserID == userID && filter.Match(r.toDomain()) {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (s *Store) ListAllExpenses(context.Context) ([]domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Expense, 0, len(expenses))
	for _, r := range expenses {
		out = append(out, r.toDomain())
	}
	storage.SortExpenses(out)
	return out, nil
}

func (s *Store) RenameCategory(_ context.Context, from, to domain.Category) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := load[expenseRecord](s, expensesFile)
	if err != nil {
		return 0, err
	}
	var n int64
	for i := range expenses {
		if expenses[i].Category == string(from) {
			expenses[i].Category = string(to)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, save(s, expensesFile, expenses)
}

// === BudgetStorage ===

// legacyBudget looks for a budget on the user record itself. Callers hold s.mu.
func (s *Store) legacyBudget(userID string) (*budgetRecord, error) {
	users, err := load[userRecord](s, usersFile)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u.legacyBudget(), nil
		}
	}
	return nil, nil
}

func (s *Store) GetBudget(_ context.Context, userID string) (*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budgets, err := load[budgetRecord](s, budgetsFile)
	if err != nil {
		return nil, err
	}
	for _, r := range budgets {
		if r.UserID == userID {
			b := domain.Budget(r)
			return &b, nil
		}
	}
	legacy, err := s.legacyBudget(userID)
	if err != nil || legacy == nil {
		return nil, err
	}
	b := domain.Budget(*legacy)
	return &b, nil
}

func (s *Store) UpsertBudget(_ context.Context, userID string, amount decimal.Decimal, threshold *int) (*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budgets, err := load[budgetRecord](s, budgetsFile)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, r := range budgets {
		if r.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		seed := budgetRecord{UserID: userID, WarningThreshold: domain.DefaultWarningThreshold}
		legacy, err := s.legacyBudget(userID)
		if err != nil {
			return nil, err
		}
		if legacy != nil {
			seed = *legacy
		}
		budgets = append(budgets, seed)
		idx = len(budgets) - 1
	}
	budgets[idx].MonthlyBudget = amount
	if threshold != nil {
		budgets[idx].WarningThreshold = *threshold
	}
	budgets[idx].UpdatedAt = s.now().UTC()
	if err := save(s, budgetsFile, budgets); err != nil {
		return nil, err
	}
	b := domain.Budget(budgets[idx])
	return &b, nil
}
