package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lockstats/internal/pubsub"
)

var _ pubsub.Broadcaster = (*Broadcaster)(nil)

// Broadcaster publishes JSON messages to "<prefix>.<subject>"
type Broadcaster struct {
	client *Client
	prefix string
}

func NewBroadcaster(client *Client, prefix string) (*Broadcaster, error) {
	if client == nil {
		return nil, errors.New("nats client is required to the broadcaster")
	}
	return &Broadcaster{
		client: client,
		prefix: strings.TrimSuffix(prefix, "."),
	}, nil
}

func (b *Broadcaster) Subject(subject string) string {
	if b.prefix == "" {
		return subject
	}
	return b.prefix + "." + subject
}

func (b *Broadcaster) Publish(_ context.Context, subject string, data interface{}) error {
	if !b.client.Ready() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}

	if err = b.client.nc.Publish(b.Subject(subject), payload); err != nil {
		return fmt.Errorf("publish %s: %w", b.Subject(subject), err)
	}
	return nil
}

func (b *Broadcaster) Health(ctx context.Context) error {
	return b.client.Health(ctx)
}
