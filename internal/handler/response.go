package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"expense-tracker/internal/domain"
	"expense-tracker/internal/service"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Count   *int                `json:"count,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func okMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func okList[T any](c *gin.Context, items []T) {
	n := len(items)
	c.JSON(http.StatusOK, Response{Success: true, Count: &n, Data: items})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Message: message})
}

// respondError maps service errors to statuses; anything unknown is logged and hidden.
func respondError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: verr.Message, Errors: verr.Fields})
		return
	}

	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, domain.ErrConflict):
		status, message = http.StatusBadRequest, "Resource already exists"
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, domain.ErrEmailNotVerified):
		status, message = http.StatusForbidden, "Email not verified"
	case errors.Is(err, domain.ErrForbidden):
		status, message = http.StatusForbidden, "Access denied"
	case errors.Is(err, domain.ErrNotFound):
		status, message = http.StatusNotFound, "Resource not found"
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
		fail(c, status, message)
		return
	}

	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	fail(c, status, message)
}

// bindJSON treats an empty body as an empty object so field validation reports what is missing.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	slog.DebugContext(c.Request.Context(), "Malformed request body", "path", c.Request.URL.Path, "error", err)
	fail(c, http.StatusBadRequest, "Invalid request body")
	return false
}

func sendCSV(c *gin.Context, e *service.Export) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, e.Filename))
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(e.Content))
}
