package email

import (
	"context"
)

type Service interface {
	SendPasswordReset(ctx context.Context, email string, token string) error
}
