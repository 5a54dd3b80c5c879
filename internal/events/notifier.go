package events

import (
	"context"
	"fmt"
)

type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier publishes notifications without waiting for a reply.
type NatsNotifier struct {
	conn natsPublisher
}

func NewNatsNotifier(conn natsPublisher) *NatsNotifier {
	return &NatsNotifier{conn: conn}
}

func (n *NatsNotifier) Notify(_ context.Context, subject string, payload []byte) error {
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
