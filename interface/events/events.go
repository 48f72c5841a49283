package events

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/airbusgeo/reserve-monitor/common"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"go.uber.org/zap"
)

// Config of the event queue: pgqueue if PgqConnection is set, pubsub otherwise.
// No queue is configured if Queue is empty.
// With pubsub, events are published to the topic Queue and consumed from Subscription
// (defaults to Queue).
type Config struct {
	PgqConnection string
	PsProject     string
	Queue         string
	Subscription  string
}

// SetFlags registers the flags of the event queue
func (c *Config) SetFlags() {
	flag.StringVar(&c.PgqConnection, "pgq-connection", "", "enable pgqueue messaging system with a connection to the database")
	flag.StringVar(&c.PsProject, "ps-project", "", "subscription project (gcp pubSub only)")
	flag.StringVar(&c.Queue, "event-queue", "", "name of the queue for events (pgqueue or pubsub topic) (optional)")
	flag.StringVar(&c.Subscription, "event-subscription", "", "pubsub subscription to consume the events (default: event-queue)")
}

func (c Config) subscription() string {
	if c.Subscription != "" {
		return c.Subscription
	}
	return c.Queue
}

// String describes the queue, for logging
func (c Config) String() string {
	switch {
	case c.Queue == "":
		return "none"
	case c.PgqConnection != "":
		return "pgqueue:" + c.Queue
	case c.subscription() != c.Queue:
		return fmt.Sprintf("pubsub:%s/%s (subscription: %s)", c.PsProject, c.Queue, c.Subscription)
	default:
		return fmt.Sprintf("pubsub:%s/%s", c.PsProject, c.Queue)
	}
}

// NewPublisher connects a publisher to the queue.
// Returns nil if no queue is configured. stop must be called to release the publisher.
func (c Config) NewPublisher(ctx context.Context) (p messaging.Publisher, stop func(), err error) {
	stop = func() {}
	if c.Queue == "" {
		return nil, stop, nil
	}
	if c.PgqConnection != "" {
		_, w, err := pgqueue.SqlConnect(ctx, c.PgqConnection)
		if err != nil {
			return nil, stop, fmt.Errorf("NewPublisher.%w", err)
		}
		return pgqueue.NewPublisher(w, c.Queue, pgqueue.WithMaxRetries(5)), stop, nil
	}
	topic, err := pubsub.NewPublisher(ctx, c.PsProject, c.Queue, pubsub.WithMaxRetries(5))
	if err != nil {
		return nil, stop, fmt.Errorf("pubsub.NewPublisher: %w", err)
	}
	return topic, func() { topic.Stop() }, nil
}

// NewConsumer connects a consumer to the queue.
// Returns nil if no queue is configured. stop must be called to release the consumer.
func (c Config) NewConsumer(ctx context.Context) (cs messaging.Consumer, stop func(), err error) {
	stop = func() {}
	if c.Queue == "" {
		return nil, stop, nil
	}
	if c.PgqConnection != "" {
		db, _, err := pgqueue.SqlConnect(ctx, c.PgqConnection)
		if err != nil {
			return nil, stop, fmt.Errorf("NewConsumer.%w", err)
		}
		consumer := pgqueue.NewConsumer(db, c.Queue)
		return consumer, func() { consumer.Stop() }, nil
	}
	consumer, err := pubsub.NewConsumer(c.PsProject, c.subscription())
	if err != nil {
		return nil, stop, fmt.Errorf("pubsub.NewConsumer: %w", err)
	}
	return consumer, stop, nil
}

// Publish sends the event. Failures are logged: events are informative and must not stop a processing.
func Publish(ctx context.Context, p messaging.Publisher, evt common.Event) {
	if p == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Logger(ctx).Warn("unable to marshal the event", zap.Error(err))
		return
	}
	if err := p.Publish(ctx, data); err != nil {
		log.Logger(ctx).Warn("unable to publish the event", zap.Error(err))
	}
}

// PublishProduct sends an event announcing the files of a product (mosaic, index...)
func PublishProduct(ctx context.Context, p messaging.Publisher, id string, files ...string) {
	if len(files) == 0 {
		return
	}
	Publish(ctx, p, common.Event{Type: common.EventTypeProduct, ID: id, State: common.OrderStateSuccess, Files: files})
}

// Decode parses and checks an event
func Decode(data []byte) (common.Event, error) {
	var evt common.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("invalid payload: %w", err)
	}
	if evt.Type != common.EventTypeOrder && evt.Type != common.EventTypeProduct {
		return evt, fmt.Errorf("invalid payload: unknown type '%s'", evt.Type)
	}
	if evt.ID == "" {
		return evt, errors.New("invalid payload: missing id")
	}
	return evt, nil
}
