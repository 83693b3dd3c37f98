package event

import (
	"context"

	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/messaging"
)

// Emitter publishes events on a best-effort basis: a broker failure is
// logged and never fails the caller's request.
type Emitter interface {
	Emit(ctx context.Context, eventType EventType, payload interface{})
}

type Service struct {
	publisher messaging.Publisher
	logger    *logger.Logger
}

func NewService(publisher messaging.Publisher, logger *logger.Logger) *Service {
	return &Service{
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) Emit(ctx context.Context, eventType EventType, payload interface{}) {
	if err := s.publisher.Publish(ctx, string(eventType), payload); err != nil {
		s.logger.Error(err, "failed to emit event", "event_type", string(eventType))
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, EventType, interface{}) {}
