package events

import (
	"context"
	"errors"
	"testing"

	"github.com/airbusgeo/reserve-monitor/common"
)

type recorder struct {
	data [][]byte
	err  error
}

func (r *recorder) Publish(ctx context.Context, data ...[]byte) error {
	r.data = append(r.data, data...)
	return r.err
}

func TestPublishAndDecode(t *testing.T) {
	ctx := context.Background()
	r := &recorder{}
	Publish(ctx, r, common.Event{Type: common.EventTypeOrder, ID: "o0", State: common.OrderStateFailed, RunID: "run1", ItemIDs: []string{"a", "b"}})
	PublishProduct(ctx, r, "2021-09-01", "mosaics/2021-09-01.tif")
	PublishProduct(ctx, r, "2021-09-02")
	if len(r.data) != 2 {
		t.Fatalf("expected 2 events, got %d", len(r.data))
	}

	evt, err := Decode(r.data[0])
	if err != nil {
		t.Fatal(err)
	}
	if evt.ID != "o0" || evt.State != common.OrderStateFailed || evt.RunID != "run1" || len(evt.ItemIDs) != 2 {
		t.Errorf("unexpected event %+v", evt)
	}
	evt, err = Decode(r.data[1])
	if err != nil {
		t.Fatal(err)
	}
	if evt.Type != common.EventTypeProduct || len(evt.Files) != 1 {
		t.Errorf("unexpected event %+v", evt)
	}

	// Failures are only logged
	Publish(ctx, &recorder{err: errors.New("unavailable")}, evt)
	Publish(ctx, nil, evt)
}

func TestDecodeInvalid(t *testing.T) {
	for _, data := range []string{`{`, `{"type":"tile","id":"1"}`, `{"type":"order"}`} {
		if _, err := Decode([]byte(data)); err == nil {
			t.Errorf("%s: expected an error", data)
		}
	}
}

func TestConfig(t *testing.T) {
	ctx := context.Background()
	c := Config{}
	p, stop, err := c.NewPublisher(ctx)
	if err != nil || p != nil {
		t.Errorf("expected no publisher, got %v, %v", p, err)
	}
	stop()
	cs, stop, err := c.NewConsumer(ctx)
	if err != nil || cs != nil {
		t.Errorf("expected no consumer, got %v, %v", cs, err)
	}
	stop()
	if c.String() != "none" {
		t.Error(c.String())
	}
	if s := (Config{PgqConnection: "postgresql://", Queue: "events"}).String(); s != "pgqueue:events" {
		t.Error(s)
	}
	if s := (Config{PsProject: "p", Queue: "events"}).String(); s != "pubsub:p/events" {
		t.Error(s)
	}
	if s := (Config{PsProject: "p", Queue: "events", Subscription: "ledger"}).String(); s != "pubsub:p/events (subscription: ledger)" {
		t.Error(s)
	}
}

func TestSubscription(t *testing.T) {
	if s := (Config{Queue: "reserve-monitor-events"}).subscription(); s != "reserve-monitor-events" {
		t.Errorf("expected the queue as subscription, got %s", s)
	}
	c := Config{Queue: "reserve-monitor-events", Subscription: "reserve-monitor-ledger"}
	if s := c.subscription(); s != "reserve-monitor-ledger" {
		t.Errorf("expected reserve-monitor-ledger, got %s", s)
	}
	if c.Queue != "reserve-monitor-events" {
		t.Errorf("the topic must not depend on the subscription, got %s", c.Queue)
	}
}
