package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lockstats/internal/config"
	"lockstats/internal/domain"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

const (
	defaultFetchWait  = 2 * time.Second
	defaultRetryDelay = 5 * time.Second
)

// EventProcessor applies one locker event; duplicates must return nil
type EventProcessor interface {
	Process(ctx context.Context, ev *domain.Event) error
}

/*
	Consumer pulls locker events from a JetStream durable, strictly one at a time.
	MaxAckPending=1 keeps delivery in stream order, which the user ledger relies on.

	ack:  applied or duplicate
	term: the event can never be applied (bad json, malformed fields, unknown type)
	nak:  anything else, redelivered after retry_delay
*/
type Consumer struct {
	client     *Client
	log        logger.Logger
	handler    EventProcessor
	sub        *nats.Subscription
	subject    string
	fetchWait  time.Duration
	retryDelay time.Duration
}

func NewConsumer(client *Client, cfg *config.NATSConfig, handler EventProcessor, log logger.Logger) (*Consumer, error) {
	if client == nil || client.nc == nil {
		return nil, errors.New("nats client is required to the consumer")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if handler == nil {
		return nil, errors.New("event processor is required to the consumer")
	}
	if cfg.Stream == "" || cfg.IngestSubject == "" || cfg.Durable == "" {
		return nil, errors.New("nats stream, ingest_subject and durable are required")
	}

	js, err := client.nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if err = ensureStream(js, cfg.Stream, cfg.IngestSubject); err != nil {
		return nil, err
	}

	sub, err := js.PullSubscribe(
		cfg.IngestSubject,
		cfg.Durable,
		nats.BindStream(cfg.Stream),
		nats.AckExplicit(),
		nats.MaxAckPending(1),
	)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s/%s: %w", cfg.Stream, cfg.Durable, err)
	}

	c := &Consumer{
		client:     client,
		log:        log,
		handler:    handler,
		sub:        sub,
		subject:    cfg.IngestSubject,
		fetchWait:  cfg.FetchWait,
		retryDelay: cfg.RetryDelay,
	}
	if c.fetchWait <= 0 {
		c.fetchWait = defaultFetchWait
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}

	return c, nil
}

func ensureStream(js nats.JetStreamContext, stream, subject string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", stream, err)
	}
	return nil
}

// Run blocks until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Infof("Consuming locker events from %s", c.subject)

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := c.sub.Fetch(1, nats.MaxWait(c.fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, nats.ErrConnectionClosed) {
				return nil
			}

			c.log.Warnf("Fetch from %s failed, error=%v", c.subject, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *nats.Msg) {
	var ev domain.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		c.log.Errorf("Dropping undecodable event on %s, error=%v", msg.Subject, err)
		c.settle(msg.Term, "term")
		return
	}

	err := c.handler.Process(ctx, &ev)
	switch {
	case err == nil:
		c.settle(msg.Ack, "ack")
	case errors.Is(err, domain.ErrMalformedEvent), errors.Is(err, domain.ErrUnknownEventType):
		c.log.Errorf("Dropping malformed event %s, error=%v", ev.MovementID(), err)
		c.settle(msg.Term, "term")
	default:
		c.log.Warnf("Event %s failed, redelivering in %s, error=%v", ev.MovementID(), c.retryDelay, err)
		c.settle(func(opts ...nats.AckOpt) error {
			return msg.NakWithDelay(c.retryDelay, opts...)
		}, "nak")
	}
}

func (c *Consumer) settle(fn func(...nats.AckOpt) error, what string) {
	if err := fn(); err != nil {
		c.log.Errorf("Failed to %s message, error=%v", what, err)
	}
}
