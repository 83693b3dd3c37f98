// Package reuse blocks resetting a password to the one already in use.
package reuse

import (
	"context"
	"errors"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/service/expiration"
	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/metrics"
	"github.com/jwalitptl/expass/pkg/security"
)

var ErrReuseRejected = errors.New("you cannot reuse your old password")

type PolicySource interface {
	Current(ctx context.Context) model.Policy
}

type Guard struct {
	policy   PolicySource
	verifier security.PasswordVerifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewGuard(policy PolicySource, verifier security.PasswordVerifier, log *logger.Logger, m *metrics.Metrics) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{policy: policy, verifier: verifier, logger: log, metrics: m}
}

// Check validates a reset submission before it is committed. pass1 and pass2
// are the two entries of the new password. Mismatched or empty entries and
// users outside the policy pass through untouched; other checks own those.
func (g *Guard) Check(ctx context.Context, user *model.User, pass1, pass2 string) error {
	if pass1 == "" || pass2 == "" || pass1 != pass2 {
		return nil
	}
	if !expiration.HasExpirableRole(user, g.policy.Current(ctx)) {
		return nil
	}

	if !g.verifier.Verify(pass1, user.PasswordHash) {
		return nil
	}

	g.logger.WithContext(ctx).Info("password reuse rejected", "user_id", user.ID.String(), "reason", "password_already_used")
	if g.metrics != nil {
		g.metrics.ReuseRejections.Inc()
	}
	return ErrReuseRejected
}
