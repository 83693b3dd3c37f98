package policy

import (
	"context"

	"github.com/jwalitptl/expass/pkg/event"
	"github.com/jwalitptl/expass/pkg/messaging"
)

// Invalidate drops the cached settings and bootstrap roles so the next read
// goes to the repository.
func (s *Service) Invalidate() {
	s.cache.Flush()
}

// WatchUpdates flushes the cache whenever a policy.updated event arrives on
// channel, so a change saved through another process is seen without waiting
// for the cache TTL. It blocks until ctx is done or the subscription closes.
func (s *Service) WatchUpdates(ctx context.Context, broker messaging.Broker, channel string) error {
	return messaging.Consume(ctx, broker, channel, s.handleEvent, func(err error) {
		s.logger.Error(err, "failed to handle policy event", "channel", channel)
	})
}

func (s *Service) handleEvent(msg messaging.Message) error {
	if msg.Type != string(event.PolicyUpdated) {
		return nil
	}
	s.Invalidate()
	s.logger.Debug("policy cache invalidated by event")
	return nil
}
