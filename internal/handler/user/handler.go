package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/handler"
	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/service/expiration"
	apperrors "github.com/jwalitptl/expass/pkg/errors"
)

type Service interface {
	PasswordStatus(ctx context.Context, id uuid.UUID) (*model.PasswordStatus, error)
	ListPasswordStatus(ctx context.Context, filter *model.UserFilter) ([]*model.PasswordStatus, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/password-status", h.ListPasswordStatus)
		users.GET("/:id/password-status", h.PasswordStatus)
	}
}

func (h *Handler) ListPasswordStatus(c *gin.Context) {
	var filter model.UserFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid query", err))
		return
	}

	statuses, err := h.svc.ListPasswordStatus(c.Request.Context(), &filter)
	if err != nil {
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(statuses))
}

func (h *Handler) PasswordStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.BadRequest("invalid user id", err))
		return
	}

	status, err := h.svc.PasswordStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, expiration.ErrUserNotFound) {
			_ = c.Error(apperrors.UserNotFound(err))
			return
		}
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(status))
}
