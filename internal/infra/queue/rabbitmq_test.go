package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-affiliate-bot/internal/domain"
)

type fakeAcknowledger struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return nil
}

type fakeChannel struct {
	consumeCalls int
	cancelled    []string
	deliveries   chan amqp.Delivery
	published    []amqp.Publishing
	closed       bool
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.consumeCalls++
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.cancelled = append(c.cancelled, consumer)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func newTestQueue() (*RabbitPublishQueue, *fakeChannel) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
	return &RabbitPublishQueue{channel: ch, queue: "publish_jobs"}, ch
}

func pushJob(t *testing.T, ch *fakeChannel, ack amqp.Acknowledger, id string, tag uint64) {
	t.Helper()
	body, err := json.Marshal(domain.PublishJob{ID: id, ProductID: 1, Cause: domain.PublishCauseManual})
	if err != nil {
		t.Fatalf("не удалось сериализовать задачу: %v", err)
	}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func TestReceiveReusesSingleConsumer(t *testing.T) {
	q, ch := newTestQueue()
	ack := &fakeAcknowledger{}
	pushJob(t, ch, ack, "job-1", 1)
	pushJob(t, ch, ack, "job-2", 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i, want := range []string{"job-1", "job-2"} {
		job, ackFn, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive #%d: %v", i+1, err)
		}
		if job.ID != want {
			t.Fatalf("ожидалась задача %s, получена %s", want, job.ID)
		}
		if err := ackFn(true); err != nil {
			t.Fatalf("подтверждение задачи: %v", err)
		}
	}

	if ch.consumeCalls != 1 {
		t.Fatalf("ожидалась одна подписка на очередь, получено %d", ch.consumeCalls)
	}
	if len(ack.acked) != 2 {
		t.Fatalf("ожидалось два подтверждения, получено %d", len(ack.acked))
	}
}

func TestReceiveNackRequeues(t *testing.T) {
	q, ch := newTestQueue()
	ack := &fakeAcknowledger{}
	pushJob(t, ch, ack, "job-1", 7)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, ackFn, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := ackFn(false); err != nil {
		t.Fatalf("возврат задачи: %v", err)
	}

	if len(ack.nacked) != 1 || ack.nacked[0] != 7 {
		t.Fatalf("ожидался nack доставки 7, получено %v", ack.nacked)
	}
	if !ack.requeue[0] {
		t.Fatal("задача должна вернуться в очередь")
	}
}

func TestCloseCancelsConsumer(t *testing.T) {
	q, ch := newTestQueue()
	ack := &fakeAcknowledger{}
	pushJob(t, ch, ack, "job-1", 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, _, err := q.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(ch.cancelled) != 1 || ch.cancelled[0] != "publish_jobs-consumer" {
		t.Fatalf("консьюмер не снят: %v", ch.cancelled)
	}
	if !ch.closed {
		t.Fatal("канал не закрыт")
	}
}
