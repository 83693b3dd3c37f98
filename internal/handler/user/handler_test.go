package user

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/expass/internal/middleware"
	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/service/expiration"
)

type fakeService struct {
	known  uuid.UUID
	filter *model.UserFilter
}

func (f *fakeService) PasswordStatus(_ context.Context, id uuid.UUID) (*model.PasswordStatus, error) {
	if id != f.known {
		return nil, fmt.Errorf("%w: %s", expiration.ErrUserNotFound, id)
	}
	return &model.PasswordStatus{
		User:    &model.User{Base: model.Base{ID: id}, Email: "jane@example.com"},
		Verdict: &model.ExpirationVerdict{UserID: id, Reason: model.ReasonNoTimestamp, IsExpirable: true},
	}, nil
}

func (f *fakeService) ListPasswordStatus(_ context.Context, filter *model.UserFilter) ([]*model.PasswordStatus, error) {
	f.filter = filter
	return []*model.PasswordStatus{}, nil
}

func setupRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestPasswordStatus(t *testing.T) {
	svc := &fakeService{known: uuid.New()}
	r := setupRouter(svc)

	w := get(r, "/api/v1/users/"+svc.known.String()+"/password-status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"no_timestamp"`)

	w = get(r, "/api/v1/users/"+uuid.NewString()+"/password-status")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "user not found")

	w = get(r, "/api/v1/users/not-a-uuid/password-status")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPasswordStatus(t *testing.T) {
	svc := &fakeService{}

	w := get(setupRouter(svc), "/api/v1/users/password-status?role=editor&page=2&page_size=10")

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter)
	assert.Equal(t, "editor", svc.filter.Role)
	assert.Equal(t, 10, svc.filter.Offset())
}
