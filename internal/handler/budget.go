package handler

import (
	"net/http"

	"expense-tracker/internal/middleware"
	"expense-tracker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) GetBudget(c *gin.Context) {
	status, err := h.budgets.Get(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, status)
}

type budgetView struct {
	MonthlyBudget          decimal.Decimal `json:"monthlyBudget"`
	BudgetWarningThreshold int             `json:"budgetWarningThreshold"`
}

func (h *Handler) SetBudget(c *gin.Context) {
	var in service.BudgetInput
	if !bindJSON(c, &in) {
		return
	}
	b, err := h.budgets.Set(c.Request.Context(), middleware.CurrentUserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	okMessage(c, "Budget updated successfully", budgetView{
		MonthlyBudget:          b.MonthlyBudget,
		BudgetWarningThreshold: b.WarningThreshold,
	})
}

func (h *Handler) BudgetHistory(c *gin.Context) {
	history, err := h.budgets.History(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	okList(c, history)
}
