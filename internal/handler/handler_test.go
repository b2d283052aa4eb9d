package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/config"
	"expense-tracker/internal/domain"
	"expense-tracker/internal/middleware"
	"expense-tracker/internal/service"
	"expense-tracker/internal/storage/jsonfile"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Count   *int                `json:"count"`
	Data    json.RawMessage     `json:"data"`
	Errors  []domain.FieldError `json:"errors"`
	Token   string              `json:"token"`
	Path    string              `json:"path"`
}

type APISuite struct {
	suite.Suite
	store  *jsonfile.Store
	router *gin.Engine
	now    time.Time
}

func TestAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	store, err := jsonfile.New(s.T().TempDir())
	s.Require().NoError(err)
	s.store = store
	s.now = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

	clock := service.Clock{Now: func() time.Time { return s.now }, Location: time.UTC}
	tokens := auth.NewTokenService(config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
	expenses := service.NewExpenseService(store, clock)
	h := New(store, Services{
		Expenses: expenses,
		Budgets:  service.NewBudgetService(store, store, clock),
		Exports:  service.NewExportService(expenses, store, store, clock),
		Auth:     service.NewAuthService(store, store, tokens, nil, service.AuthConfig{PasswordResetEnabled: true}, clock),
		Admin:    service.NewAdminService(store),
	})
	s.router = NewRouter(h, middleware.NewAuthMiddleware(tokens, store), RouterConfig{})
}

func (s *APISuite) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *APISuite) register(name, email string) string {
	w, env := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": name, "email": email, "password": "secret1"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Require().NotEmpty(env.Token)
	return env.Token
}

func (s *APISuite) createExpense(token string, body gin.H) domain.Expense {
	w, env := s.do(http.MethodPost, "/api/expenses", token, body)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var e domain.Expense
	s.Require().NoError(json.Unmarshal(env.Data, &e))
	return e
}

func (s *APISuite) TestRootHealthAndFallback() {
	w, env := s.do(http.MethodGet, "/", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("Expense Tracker API", env.Message)

	w, env = s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.True(env.Success)

	w, env = s.do(http.MethodGet, "/api/nope", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Route not found", env.Message)
	s.Equal("/api/nope", env.Path)
}

func (s *APISuite) TestAuthEndpoints() {
	token := s.register("Asha", "asha@example.com")

	w, env := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "Asha", "email": "asha@example.com", "password": "secret1"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Email already registered", env.Message)

	w, env = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "asha@example.com", "password": "wrong1"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("Invalid credentials", env.Message)

	w, env = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "asha@example.com", "password": "secret1"})
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(env.Token)

	w, env = s.do(http.MethodGet, "/api/auth/me", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(string(env.Data), `"email":"asha@example.com"`)
	s.NotContains(w.Body.String(), "password")

	w, env = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"name": "X", "email": "bad", "password": "1"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Validation failed", env.Message)
	s.Len(env.Errors, 3)

	w, _ = s.do(http.MethodPost, "/api/auth/reset-password", "", gin.H{"email": "asha@example.com", "newPassword": "another"})
	s.Equal(http.StatusOK, w.Code)

	w, env = s.do(http.MethodGet, "/api/auth/verify-email", "", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Verification token is required", env.Message)
}

func (s *APISuite) TestExpenseLifecycle() {
	token := s.register("Asha", "asha@example.com")

	w, _ := s.do(http.MethodGet, "/api/expenses", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	e := s.createExpense(token, gin.H{"description": "Groceries", "amount": 42.5, "category": "Food", "date": "2024-03-10"})
	s.NotEmpty(e.ID)
	s.Equal("2024-03-10", e.Date.Format(domain.DateLayout))

	w, env := s.do(http.MethodPost, "/api/expenses", token, gin.H{"description": "x", "amount": -1, "category": "Nope"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Validation failed", env.Message)
	s.Len(env.Errors, 3)

	w, env = s.do(http.MethodPost, "/api/expenses", token, "not an object")
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Invalid request body", env.Message)

	w, env = s.do(http.MethodPut, "/api/expenses/"+e.ID, token, gin.H{"amount": 50})
	s.Equal(http.StatusOK, w.Code)
	var updated domain.Expense
	s.Require().NoError(json.Unmarshal(env.Data, &updated))
	s.Equal("Groceries", updated.Description)
	s.Equal("50", updated.Amount.String())

	w, env = s.do(http.MethodGet, "/api/expenses?category=Food&startDate=2024-03-01&endDate=2024-03-31", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(env.Count)
	s.Equal(1, *env.Count)

	w, env = s.do(http.MethodGet, "/api/expenses?startDate=soon", token, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodGet, "/api/expenses/summary/monthly", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(1, *env.Count)

	other := s.register("Bo", "bo@example.com")
	w, env = s.do(http.MethodDelete, "/api/expenses/"+e.ID, other, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("Expense not found", env.Message)

	w, env = s.do(http.MethodDelete, "/api/expenses/"+e.ID, token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("Expense deleted", env.Message)

	w, _ = s.do(http.MethodGet, "/api/expenses/"+e.ID, token, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodGet, "/api/expenses", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(0, *env.Count)
	s.JSONEq(`[]`, string(env.Data))
}

func (s *APISuite) TestBudgetEndpoints() {
	token := s.register("Asha", "asha@example.com")

	w, env := s.do(http.MethodPut, "/api/budget", token, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("Monthly budget is required", env.Message)

	w, env = s.do(http.MethodPut, "/api/budget", token, gin.H{"monthlyBudget": 1000, "budgetWarningThreshold": 80})
	s.Equal(http.StatusOK, w.Code)
	s.Equal("Budget updated successfully", env.Message)
	s.JSONEq(`{"monthlyBudget":1000,"budgetWarningThreshold":80}`, string(env.Data))

	s.createExpense(token, gin.H{"description": "Rent share", "amount": 850, "category": "Bills"})

	w, env = s.do(http.MethodGet, "/api/budget", token, nil)
	s.Equal(http.StatusOK, w.Code)
	var status map[string]any
	s.Require().NoError(json.Unmarshal(env.Data, &status))
	s.Equal(float64(1000), status["budget"])
	s.Equal(float64(850), status["totalSpent"])
	s.Equal(float64(85), status["percentageUsed"])
	s.Equal(true, status["isWarning"])
	s.Equal(false, status["isExceeded"])
	s.Equal("March 2024", status["month"])

	w, env = s.do(http.MethodGet, "/api/budget/history", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal(12, *env.Count)
}

func (s *APISuite) TestExportEndpoints() {
	token := s.register("Asha", "asha@example.com")

	w, env := s.do(http.MethodGet, "/api/export/expenses", token, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("No expenses found for the specified criteria", env.Message)

	w, env = s.do(http.MethodGet, "/api/export/monthly-summary", token, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("No expense data available", env.Message)

	s.createExpense(token, gin.H{"description": `Say "cheese"`, "amount": 10, "category": "Other", "date": "2024-03-02"})

	w, _ = s.do(http.MethodGet, "/api/export/expenses", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	s.Equal(`attachment; filename="expenses_2024-03-15.csv"`, w.Header().Get("Content-Disposition"))
	s.Equal("no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	s.Contains(w.Body.String(), `2/3/2024,"Say ""cheese""",Other,10.00`)

	w, _ = s.do(http.MethodGet, "/api/export/expenses-with-budget", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.True(strings.HasPrefix(w.Body.String(), "EXPENSE REPORT\n"))

	w, _ = s.do(http.MethodGet, "/api/export/monthly-summary", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "March 2024,10.00,1")
}

func (s *APISuite) TestAdminEndpoints() {
	userToken := s.register("Asha", "asha@example.com")
	s.register("Root", "root@example.com")

	admin, err := s.store.GetUserByEmail(s.T().Context(), "root@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetRole(s.T().Context(), admin.ID, domain.RoleAdmin))
	tokens := auth.NewTokenService(config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour})
	adminToken, err := tokens.GenerateToken(admin.ID, domain.RoleAdmin)
	s.Require().NoError(err)

	s.createExpense(userToken, gin.H{"description": "Movie night", "amount": 12, "category": "Entertainment"})

	w, env := s.do(http.MethodGet, "/api/admin/dashboard", userToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("Access denied", env.Message)

	w, env = s.do(http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var d struct {
		Users    []map[string]any `json:"users"`
		Expenses []map[string]any `json:"expenses"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &d))
	s.Len(d.Users, 2)
	s.Require().Len(d.Expenses, 1)
	s.Equal("asha@example.com", d.Expenses[0]["ownerEmail"])
	s.NotContains(w.Body.String(), "$2a$")

	w, env = s.do(http.MethodDelete, "/api/admin/users/"+admin.ID, adminToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("You cannot delete your own account", env.Message)

	asha, err := s.store.GetUserByEmail(s.T().Context(), "asha@example.com")
	s.Require().NoError(err)
	w, _ = s.do(http.MethodDelete, "/api/admin/users/"+asha.ID, adminToken, nil)
	s.Equal(http.StatusOK, w.Code)

	// the deleted user's token stops working
	w, _ = s.do(http.MethodGet, "/api/expenses", userToken, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func TestResetPasswordRouteDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	tokens := auth.NewTokenService(config.Config{JWTSecret: "s", JWTExpiresIn: time.Hour})
	expenses := service.NewExpenseService(store, service.Clock{})
	h := New(store, Services{
		Expenses: expenses,
		Budgets:  service.NewBudgetService(store, store, service.Clock{}),
		Exports:  service.NewExportService(expenses, store, store, service.Clock{}),
		Auth:     service.NewAuthService(store, store, tokens, nil, service.AuthConfig{}, service.Clock{}),
		Admin:    service.NewAdminService(store),
	})
	r := NewRouter(h, middleware.NewAuthMiddleware(tokens, store), RouterConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
