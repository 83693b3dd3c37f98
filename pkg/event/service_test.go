package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/expass/pkg/logger"
)

type recordingPublisher struct {
	types []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ interface{}) error {
	p.types = append(p.types, eventType)
	return p.err
}

func TestService_Emit(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(pub, logger.Nop())

	svc.Emit(context.Background(), PasswordReset, PasswordEvent{})
	assert.Equal(t, []string{"password.reset"}, pub.types)
}

func TestService_EmitSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := NewService(pub, logger.Nop())

	assert.NotPanics(t, func() {
		svc.Emit(context.Background(), PasswordExpired, PasswordEvent{})
	})
	assert.Len(t, pub.types, 1)
}
