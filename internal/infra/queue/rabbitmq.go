package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-affiliate-bot/internal/domain"
)

// amqpChannel покрывает используемое подмножество *amqp.Channel.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// RabbitPublishQueue реализует очередь задач публикации через AMQP.
type RabbitPublishQueue struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string

	mu         sync.Mutex
	consumer   string
	deliveries <-chan amqp.Delivery
}

var _ domain.PublishQueue = (*RabbitPublishQueue)(nil)

// NewRabbitPublishQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitPublishQueue(amqpURL, queueName string) (*RabbitPublishQueue, error) {
	if amqpURL == "" {
		return nil, fmt.Errorf("amqp url is empty")
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	// Одна непотверждённая задача на воркер: публикации тяжёлые.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitPublishQueue{conn: conn, channel: ch, queue: queueName}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitPublishQueue) Enqueue(ctx context.Context, job domain.PublishJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// subscribe регистрирует консьюмера при первом обращении. Подписка
// ровно одна на весь срок жизни очереди: новый консьюмер на каждый
// вызов Receive распределял бы доставки по подписчикам, чьи каналы
// никто не читает, и при prefetch=1 очередь вставала бы навсегда.
func (q *RabbitPublishQueue) subscribe() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	tag := q.queue + "-consumer"
	deliveries, err := q.channel.Consume(q.queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.consumer = tag
	q.deliveries = deliveries
	return deliveries, nil
}

// Receive блокирующе читает задачу. Ack(false) возвращает задачу в очередь.
func (q *RabbitPublishQueue) Receive(ctx context.Context) (domain.PublishJob, domain.PublishAckFunc, error) {
	deliveries, err := q.subscribe()
	if err != nil {
		return domain.PublishJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.PublishJob{}, nil, ctx.Err()
	case msg, ok := <-deliveries:
		if !ok {
			return domain.PublishJob{}, nil, fmt.Errorf("amqp: delivery channel closed")
		}
		var job domain.PublishJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			_ = msg.Nack(false, false)
			return domain.PublishJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return msg.Ack(false)
			}
			return msg.Nack(false, true)
		}
		return job, ack, nil
	}
}

// Close снимает консьюмера и закрывает канал и соединение.
func (q *RabbitPublishQueue) Close() error {
	q.mu.Lock()
	if q.consumer != "" {
		_ = q.channel.Cancel(q.consumer, false)
		q.consumer = ""
		q.deliveries = nil
	}
	q.mu.Unlock()

	err := q.channel.Close()
	if q.conn != nil {
		if closeErr := q.conn.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
