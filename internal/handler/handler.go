// Package handler exposes the services over HTTP with gin.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/middleware"
	"expense-tracker/internal/service"
	"expense-tracker/internal/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store    storage.Store
	expenses *service.ExpenseService
	budgets  *service.BudgetService
	exports  *service.ExportService
	auth     *service.AuthService
	admin    *service.AdminService
}

type Services struct {
	Expenses *service.ExpenseService
	Budgets  *service.BudgetService
	Exports  *service.ExportService
	Auth     *service.AuthService
	Admin    *service.AdminService
}

func New(store storage.Store, svc Services) *Handler {
	return &Handler{
		store:    store,
		expenses: svc.Expenses,
		budgets:  svc.Budgets,
		exports:  svc.Exports,
		auth:     svc.Auth,
		admin:    svc.Admin,
	}
}

type RouterConfig struct {
	CORSOrigin string
	// nil disables rate limiting
	Limiter *middleware.RateLimiter
	Logger  *slog.Logger
}

func NewRouter(h *Handler, authMW *middleware.AuthMiddleware, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.SecurityHeaders(), middleware.CORS(origin))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	if cfg.Limiter != nil {
		api.Use(cfg.Limiter.Middleware())
	}

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.Register)
		authRoutes.POST("/login", h.Login)
		authRoutes.GET("/verify-email", h.VerifyEmail)
		if h.auth.PasswordResetEnabled() {
			authRoutes.POST("/reset-password", h.ResetPassword)
		}
		authRoutes.GET("/me", authMW.RequireAuth(), h.Me)
	}

	protected := api.Group("")
	protected.Use(authMW.RequireAuth())
	{
		protected.GET("/expenses", h.ListExpenses)
		protected.POST("/expenses", h.CreateExpense)
		protected.GET("/expenses/summary/monthly", h.MonthlySummary)
		protected.GET("/expenses/:id", h.GetExpense)
		protected.PUT("/expenses/:id", h.UpdateExpense)
		protected.DELETE("/expenses/:id", h.DeleteExpense)

		protected.GET("/budget", h.GetBudget)
		protected.PUT("/budget", h.SetBudget)
		protected.GET("/budget/history", h.BudgetHistory)

		protected.GET("/export/expenses", h.ExportExpenses)
		protected.GET("/export/expenses-with-budget", h.ExportExpensesWithBudget)
		protected.GET("/export/monthly-summary", h.ExportMonthlySummary)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/dashboard", h.AdminDashboard)
		admin.DELETE("/users/:id", h.AdminDeleteUser)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found", "path": c.Request.URL.Path})
	})
	return r
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Expense Tracker API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"health":   "/health",
			"register": "/api/auth/register",
			"login":    "/api/auth/login",
			"expenses": "/api/expenses",
			"budget":   "/api/budget",
			"export":   "/api/export/expenses",
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.Ping(ctx); err != nil {
		slog.ErrorContext(ctx, "Health check failed", "backend", h.store.Name(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "status": "unhealthy", "message": "Storage unavailable"})
		return
	}
	users, err := h.store.CountUsers(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Health check failed", "backend", h.store.Name(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "status": "unhealthy", "message": "Storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database": gin.H{
			"type":  h.store.Name(),
			"users": users,
		},
	})
}
