package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/metrics"
)

// Composer собирает содержимое поста для товара.
type Composer interface {
	Compose(ctx context.Context, product domain.Product, force bool) (domain.PostPayload, error)
}

// Router резолвит товар в список назначений.
type Router interface {
	Route(ctx context.Context, product domain.Product, payload domain.PostPayload) ([]domain.Destination, error)
}

// Config — настройки доставки.
type Config struct {
	Retries        uint64
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	InflightTTL    time.Duration
}

// Service — оркестратор публикации. Гарантии: не более одной доставки
// на пару (товар, канал), параллельные задачи по одной паре сливаются
// в одну, запись журнала публикаций append-only.
type Service struct {
	products  domain.ProductRepo
	records   domain.PublishRecordRepo
	composer  Composer
	router    Router
	publisher domain.Publisher
	notifier  domain.AdminNotifier
	cache     domain.Cache
	cfg       Config
	log       zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService создаёт оркестратор.
func NewService(
	products domain.ProductRepo,
	records domain.PublishRecordRepo,
	composer Composer,
	router Router,
	publisher domain.Publisher,
	notifier domain.AdminNotifier,
	cache domain.Cache,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.Retries == 0 {
		cfg.Retries = 4
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.InflightTTL <= 0 {
		cfg.InflightTTL = 2 * time.Minute
	}
	return &Service{
		products:  products,
		records:   records,
		composer:  composer,
		router:    router,
		publisher: publisher,
		notifier:  notifier,
		cache:     cache,
		cfg:       cfg,
		log:       log,
		inflight:  make(map[string]struct{}),
	}
}

// Handle выполняет задачу публикации. Возвращает ошибку только когда
// задачу имеет смысл доставить повторно; устаревшие и слитые задачи
// завершаются успешно без побочных эффектов.
func (s *Service) Handle(ctx context.Context, job domain.PublishJob) error {
	product, err := s.products.GetProduct(ctx, job.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Int64("product_id", job.ProductID).Str("job_id", job.ID).Msg("товар задачи удалён, пропускаем")
			return nil
		}
		return fmt.Errorf("получение товара %d: %w", job.ProductID, err)
	}

	switch {
	case product.State == domain.StateApproved:
	case product.State == domain.StatePublished && job.Force:
		// Принудительная перепубликация: новые записи журнала,
		// состояние не меняется.
	default:
		s.log.Info().
			Int64("product_id", product.ID).
			Str("state", string(product.State)).
			Str("job_id", job.ID).
			Msg("задача публикации устарела, состояние товара изменилось")
		return nil
	}

	forceCompose := job.Force || job.Cause == domain.PublishCausePriceDrop
	payload, err := s.composer.Compose(ctx, product, forceCompose)
	if err != nil {
		return fmt.Errorf("сборка поста для товара %d: %w", product.ID, err)
	}

	destinations, err := s.router.Route(ctx, product, payload)
	if err != nil {
		if errors.Is(err, domain.ErrNoDestination) {
			// Конфигурационная ошибка: товар остаётся Approved,
			// повтор задачи бессмыслен до починки категории.
			s.notify(ctx, fmt.Sprintf("Товар %s не опубликован: у категории нет каналов", product.ASIN))
			return nil
		}
		return fmt.Errorf("маршрутизация товара %d: %w", product.ID, err)
	}

	var failed []string
	for _, destination := range destinations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.deliver(ctx, product, destination, job.Force); err != nil {
			failed = append(failed, destination.ChannelID)
			s.log.Error().Err(err).
				Int64("product_id", product.ID).
				Str("channel_id", destination.ChannelID).
				Msg("доставка в канал не удалась")
		}
	}
	if len(failed) > 0 {
		s.notify(ctx, fmt.Sprintf("Товар %s: доставка не удалась в каналы %v", product.ASIN, failed))
		return fmt.Errorf("%w: каналы %v", domain.ErrDelivery, failed)
	}

	if product.State == domain.StateApproved {
		applied, err := s.products.TransitionState(ctx, product.ID, domain.StateApproved, domain.StatePublished)
		if err != nil {
			return fmt.Errorf("перевод товара %d в published: %w", product.ID, err)
		}
		if applied {
			if err := s.products.ArchiveProduct(ctx, product.ID); err != nil {
				s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось архивировать товар")
			}
		}
	}

	s.log.Info().
		Int64("product_id", product.ID).
		Str("job_id", job.ID).
		Int("channels", len(destinations)).
		Msg("товар опубликован")
	return nil
}

// deliver публикует пост в один канал. Пары (товар, канал) с уже
// состоявшейся доставкой пропускаются, если не запрошена
// принудительная перепубликация; параллельные доставки одной пары
// сливаются в одну.
func (s *Service) deliver(ctx context.Context, product domain.Product, destination domain.Destination, force bool) error {
	key := fmt.Sprintf("publish:%d:%s", product.ID, destination.ChannelID)

	s.mu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		metrics.PublishSkippedTotal.Inc()
		return nil
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}()

	return s.cache.Once(key, s.cfg.InflightTTL, func() error {
		if !force {
			delivered, err := s.records.WasDelivered(ctx, product.ID, destination.ChannelID)
			if err != nil {
				return fmt.Errorf("проверка журнала публикаций: %w", err)
			}
			if delivered {
				metrics.PublishSkippedTotal.Inc()
				s.log.Debug().
					Int64("product_id", product.ID).
					Str("channel_id", destination.ChannelID).
					Msg("уже доставлено, пропускаем")
				return nil
			}
		}
		return s.send(ctx, product, destination)
	})
}

func (s *Service) send(ctx context.Context, product domain.Product, destination domain.Destination) error {
	record, err := s.records.CreateAttempt(ctx, product.ID, destination.ChannelID)
	if err != nil {
		return fmt.Errorf("создание записи публикации: %w", err)
	}

	attempt := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.BackoffInitial
	policy.MaxInterval = s.cfg.BackoffMax

	err = backoff.Retry(func() error {
		attempt++
		sendErr := s.publisher.Publish(ctx, destination.ChannelID, destination.Payload)
		metrics.IncPublishAttempt(sendErr)
		if sendErr == nil {
			return nil
		}
		if markErr := s.records.MarkRetrying(ctx, record.ID, attempt, sendErr.Error()); markErr != nil {
			s.log.Error().Err(markErr).Int64("record_id", record.ID).Msg("не удалось отметить повтор")
		}
		return sendErr
	}, backoff.WithContext(backoff.WithMaxRetries(policy, s.cfg.Retries), ctx))

	if err != nil {
		if markErr := s.records.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.log.Error().Err(markErr).Int64("record_id", record.ID).Msg("не удалось отметить провал доставки")
		}
		return fmt.Errorf("доставка в канал %s: %w", destination.ChannelID, err)
	}

	if err := s.records.MarkDelivered(ctx, record.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("подтверждение доставки: %w", err)
	}
	metrics.IncDeliveredForChannel(destination.ChannelID)
	return nil
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAdmins(ctx, text); err != nil {
		s.log.Error().Err(err).Msg("не удалось уведомить администраторов")
	}
}
