package handler

import (
	"expense-tracker/internal/middleware"
	"expense-tracker/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ExportExpenses(c *gin.Context) {
	filter, err := service.ParseFilter(c.Query("startDate"), c.Query("endDate"), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := h.exports.Expenses(c.Request.Context(), middleware.CurrentUserID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	sendCSV(c, out)
}

func (h *Handler) ExportExpensesWithBudget(c *gin.Context) {
	filter, err := service.ParseFilter(c.Query("startDate"), c.Query("endDate"), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	out, err := h.exports.ExpensesWithBudget(c.Request.Context(), middleware.CurrentUserID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	sendCSV(c, out)
}

func (h *Handler) ExportMonthlySummary(c *gin.Context) {
	out, err := h.exports.MonthlySummary(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	sendCSV(c, out)
}
