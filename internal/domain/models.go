// internal/domain/models.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts go over the wire as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// DefaultWarningThreshold is used when a user never configured one.
const DefaultWarningThreshold = 80

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`

	// sha256 of the token mailed to the user; empty once verified
	VerificationTokenHash    string     `json:"-"`
	VerificationTokenExpires *time.Time `json:"-"`
}

type Expense struct {
	ID          string          `json:"_id"`
	UserID      string          `json:"userId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    Category        `json:"category"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ExpensePatch carries a partial update; nil fields keep their stored value.
type ExpensePatch struct {
	Description *string
	Amount      *decimal.Decimal
	Category    *Category
	Date        *time.Time
}

func (p ExpensePatch) Apply(e *Expense) {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
}

// ExpenseFilter is conjunctive; zero fields impose no constraint.
// Both date bounds are inclusive calendar dates.
type ExpenseFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  Category
}

func (f ExpenseFilter) Match(e Expense) bool {
	if f.StartDate != nil && e.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Date.After(*f.EndDate) {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	return true
}

type Budget struct {
	UserID           string          `json:"userId"`
	MonthlyBudget    decimal.Decimal `json:"monthlyBudget"`
	WarningThreshold int             `json:"budgetWarningThreshold"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// BudgetStatus is the live view of a budget against one month of spending.
type BudgetStatus struct {
	Budget           *decimal.Decimal `json:"budget"`
	TotalSpent       decimal.Decimal  `json:"totalSpent"`
	Remaining        decimal.Decimal  `json:"remaining"`
	PercentageUsed   decimal.Decimal  `json:"percentageUsed"`
	IsExceeded       bool             `json:"isExceeded"`
	IsWarning        bool             `json:"isWarning"`
	WarningThreshold int              `json:"warningThreshold"`
	Month            string           `json:"month"`
}

type BudgetHistoryEntry struct {
	Month          string          `json:"month"`
	Budget         decimal.Decimal `json:"budget"`
	Spent          decimal.Decimal `json:"spent"`
	Remaining      decimal.Decimal `json:"remaining"`
	PercentageUsed decimal.Decimal `json:"percentageUsed"`
	IsExceeded     bool            `json:"isExceeded"`
}

type CategoryTotal struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
}

type MonthlySummary struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TotalCount  int             `json:"totalCount"`
	ByCategory  []CategoryTotal `json:"byCategory"`
}

// AdminExpense is an expense joined with its owner for the admin dashboard.
type AdminExpense struct {
	Expense
	OwnerName  string `json:"ownerName"`
	OwnerEmail string `json:"ownerEmail"`
}
