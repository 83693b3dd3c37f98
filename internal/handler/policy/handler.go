package policy

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/expass/internal/handler"
	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/service/policy"
	apperrors "github.com/jwalitptl/expass/pkg/errors"
)

type Service interface {
	Settings(ctx context.Context) (*model.PolicyView, error)
	Update(ctx context.Context, limitDays *int, roles []string) error
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/policy", h.Get)
	r.PUT("/policy", h.Update)
}

func (h *Handler) Get(c *gin.Context) {
	view, err := h.svc.Settings(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

func (h *Handler) Update(c *gin.Context) {
	var req model.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("invalid request", err))
		return
	}

	if err := h.svc.Update(c.Request.Context(), req.LimitDays, req.Roles); err != nil {
		if errors.Is(err, policy.ErrInvalidLimit) {
			_ = c.Error(apperrors.BadRequest(err.Error(), err))
			return
		}
		_ = c.Error(apperrors.Internal(err))
		return
	}

	view, err := h.svc.Settings(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}
