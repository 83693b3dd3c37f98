package messaging

import (
	"context"
	"encoding/json"
)

// Consume decodes every message on channel and hands it to handler until ctx
// is done or the broker closes the subscription. Handler errors are reported
// through onErr and do not stop consumption.
func Consume(ctx context.Context, broker Broker, channel string, handler func(Message) error, onErr func(error)) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgChan:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			if err := handler(msg); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
