package handler

import (
	"net/http"

	"expense-tracker/internal/middleware"
	"expense-tracker/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListExpenses(c *gin.Context) {
	filter, err := service.ParseFilter(c.Query("startDate"), c.Query("endDate"), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.expenses.List(c.Request.Context(), middleware.CurrentUserID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	okList(c, items)
}

func (h *Handler) GetExpense(c *gin.Context) {
	e, err := h.expenses.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

func (h *Handler) CreateExpense(c *gin.Context) {
	var in service.ExpenseInput
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.expenses.Create(c.Request.Context(), middleware.CurrentUserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, e)
}

func (h *Handler) UpdateExpense(c *gin.Context) {
	var in service.ExpenseUpdate
	if !bindJSON(c, &in) {
		return
	}
	e, err := h.expenses.Update(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

func (h *Handler) DeleteExpense(c *gin.Context) {
	if err := h.expenses.Delete(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	okMessage(c, "Expense deleted", nil)
}

func (h *Handler) MonthlySummary(c *gin.Context) {
	summaries, err := h.expenses.MonthlySummary(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	okList(c, summaries)
}
