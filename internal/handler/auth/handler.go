package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/expass/internal/handler"
	"github.com/jwalitptl/expass/internal/middleware"
	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/service/auth"
	"github.com/jwalitptl/expass/internal/service/enforcement"
	"github.com/jwalitptl/expass/internal/service/expiration"
	"github.com/jwalitptl/expass/internal/service/reuse"
	apperrors "github.com/jwalitptl/expass/pkg/errors"
)

type Service interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error)
	Login(ctx context.Context, email, password string, r enforcement.Redirector) (*model.TokenResponse, error)
	Logout(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req *model.ResetPasswordRequest) error
}

type NoticeProvider interface {
	ExpiredNotice(ctx context.Context, action, status string) (string, bool)
}

type Handler struct {
	svc     Service
	notices NoticeProvider
}

func NewHandler(svc Service, notices NoticeProvider) *Handler {
	return &Handler{svc: svc, notices: notices}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
		auth.GET("/login-message", h.LoginMessage)
	}
}

// ginRedirector answers with a 302 and stops the handler chain.
type ginRedirector struct {
	c *gin.Context
}

func (r ginRedirector) Redirect(location string) {
	r.c.Redirect(http.StatusFound, location)
	r.c.Abort()
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	user, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			_ = c.Error(apperrors.BadRequest("email already registered", err))
			return
		}
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(user))
}

// Login returns a session token, or a 302 to password recovery when the
// password has expired.
func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, ginRedirector{c: c})
	switch {
	case errors.Is(err, auth.ErrPasswordExpired):
		if !c.Writer.Written() {
			_ = c.Error(apperrors.PasswordExpired(err))
		}
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid credentials"))
		return
	case err != nil:
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing or invalid authorization header"))
		return
	}

	if err := h.svc.Logout(c.Request.Context(), token); err != nil {
		_ = c.Error(apperrors.Unauthorized(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("logged out successfully"))
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("if the account exists, a reset link has been sent"))
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	err := h.svc.ResetPassword(c.Request.Context(), &req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, handler.NewSuccessResponse("password reset successfully"))
	case errors.Is(err, reuse.ErrReuseRejected):
		_ = c.Error(apperrors.ReuseRejected(err))
	case errors.Is(err, auth.ErrPasswordMismatch):
		_ = c.Error(apperrors.PasswordMismatch(err))
	case errors.Is(err, auth.ErrInvalidResetToken):
		_ = c.Error(apperrors.InvalidToken(err))
	case errors.Is(err, expiration.ErrUserNotFound):
		_ = c.Error(apperrors.UserNotFound(err))
	default:
		_ = c.Error(apperrors.Internal(err))
	}
}

// LoginMessage returns the notice for the recovery page, if any applies to
// the given action and expass markers.
func (h *Handler) LoginMessage(c *gin.Context) {
	msg, ok := h.notices.ExpiredNotice(c.Request.Context(), c.Query(enforcement.ActionParam), c.Query(enforcement.StatusParam))
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"applies": ok,
		"message": msg,
	}))
}
