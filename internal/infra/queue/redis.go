package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-affiliate-bot/internal/domain"
)

// RedisPublishQueue — резервная реализация очереди на Redis lists
// для окружений без RabbitMQ. Подтверждение «в никуда»: BRPOP уже
// удалил значение, поэтому неуспех перекладывает задачу обратно.
type RedisPublishQueue struct {
	client *redis.Client
	key    string
}

var _ domain.PublishQueue = (*RedisPublishQueue)(nil)

// NewRedisPublishQueue создаёт очередь по указанному ключу.
func NewRedisPublishQueue(client *redis.Client, key string) *RedisPublishQueue {
	return &RedisPublishQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisPublishQueue) Enqueue(ctx context.Context, job domain.PublishJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisPublishQueue) Receive(ctx context.Context) (domain.PublishJob, domain.PublishAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PublishJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PublishJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PublishJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.PublishJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := []byte(res[1])
		var job domain.PublishJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return domain.PublishJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
