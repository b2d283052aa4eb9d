package handler

import (
	"net/http"

	"expense-tracker/internal/middleware"
	"expense-tracker/internal/service"

	"github.com/gin-gonic/gin"
)

func authResponse(c *gin.Context, status int, res *service.AuthResult) {
	body := gin.H{"success": true, "message": res.Message, "user": res.User}
	if res.Token != "" {
		body["token"] = res.Token
	}
	c.JSON(status, body)
}

func (h *Handler) Register(c *gin.Context) {
	var in service.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	authResponse(c, http.StatusCreated, res)
}

func (h *Handler) Login(c *gin.Context) {
	var in service.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	authResponse(c, http.StatusOK, res)
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	if err := h.auth.VerifyEmail(c.Request.Context(), c.Query("token")); err != nil {
		respondError(c, err)
		return
	}
	okMessage(c, "Email verified successfully. You can now login.", nil)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var in service.ResetPasswordInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.auth.ResetPassword(c.Request.Context(), in); err != nil {
		respondError(c, err)
		return
	}
	okMessage(c, "Password reset successful", nil)
}

func (h *Handler) Me(c *gin.Context) {
	p, err := h.auth.Me(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
