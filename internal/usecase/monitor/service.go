package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/metrics"
)

// Config — настройки цикла мониторинга.
type Config struct {
	Concurrency  int
	FetchRetries uint64
	FetchTimeout time.Duration
}

// Service периодически опрашивает цены отслеживаемых товаров и
// превращает изменения в события конвейера публикации.
type Service struct {
	products domain.ProductRepo
	settings domain.SettingsRepo
	fetcher  domain.PriceFetcher
	queue    domain.PublishQueue
	approver SubmitFunc
	reopen   ReopenFunc
	cfg      Config
	log      zerolog.Logger

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// SubmitFunc отдаёт товар на согласование.
type SubmitFunc func(ctx context.Context, productID int64) (domain.ApprovalState, error)

// ReopenFunc возвращает отклонённый товар в начало конвейера.
type ReopenFunc func(ctx context.Context, productID int64) (bool, error)

// NewService создаёт монитор цен.
func NewService(
	products domain.ProductRepo,
	settings domain.SettingsRepo,
	fetcher domain.PriceFetcher,
	queue domain.PublishQueue,
	submit SubmitFunc,
	reopen ReopenFunc,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Service{
		products: products,
		settings: settings,
		fetcher:  fetcher,
		queue:    queue,
		approver: submit,
		reopen:   reopen,
		cfg:      cfg,
		log:      log,
		inflight: make(map[int64]struct{}),
	}
}

// RunCycle выполняет один проход по всем отслеживаемым товарам.
// Параллелизм ограничен cfg.Concurrency, один товар никогда не
// проверяется двумя горутинами одновременно.
func (s *Service) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.MonitorCycleSeconds.Observe(time.Since(start).Seconds())
	}()

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("получение настроек: %w", err)
	}
	if !settings.MonitorEnabled {
		s.log.Debug().Msg("монитор цен выключен настройками")
		return nil
	}

	products, err := s.products.ListTracked(ctx)
	if err != nil {
		return fmt.Errorf("список отслеживаемых товаров: %w", err)
	}

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, product := range products {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(p domain.Product) {
			defer wg.Done()
			defer func() { <-sem }()
			s.CheckProduct(ctx, p, settings)
		}(product)
		if settings.ProductDelay > 0 {
			select {
			case <-time.After(settings.ProductDelay):
			case <-ctx.Done():
			}
		}
	}
	wg.Wait()

	s.log.Info().
		Int("products", len(products)).
		Dur("elapsed", time.Since(start)).
		Msg("цикл монитора завершён")
	return ctx.Err()
}

// CheckProduct проверяет цену одного товара. Повторный вход для того же
// товара во время выполняющейся проверки — no-op.
func (s *Service) CheckProduct(ctx context.Context, product domain.Product, settings domain.Settings) {
	s.mu.Lock()
	if _, busy := s.inflight[product.ID]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[product.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, product.ID)
		s.mu.Unlock()
	}()

	snapshot, err := s.fetchWithRetry(ctx, product.RawURL)
	checkedAt := time.Now().UTC()
	metrics.IncPriceCheck(err)
	if err != nil {
		// Цена и прочие поля не трогаются: последнее известное
		// значение остаётся действительным.
		if recErr := s.products.RecordFetchFailure(ctx, product.ID, err.Error(), checkedAt); recErr != nil {
			s.log.Error().Err(recErr).Int64("product_id", product.ID).Msg("не удалось записать ошибку проверки")
		}
		s.log.Warn().Err(err).Int64("product_id", product.ID).Str("asin", product.ASIN).Msg("проверка цены не удалась")
		return
	}

	if snapshot.Title != "" || snapshot.ImageURL != "" {
		if err := s.products.UpdateDetails(ctx, product.ID, snapshot.Title, snapshot.ImageURL); err != nil {
			s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось обновить карточку товара")
		}
	}

	changed := product.Price == nil || *product.Price != snapshot.Price
	if err := s.products.UpdatePrice(ctx, product.ID, snapshot.Price, snapshot.Currency, checkedAt); err != nil {
		s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось сохранить цену")
		return
	}
	if !changed {
		return
	}

	event := domain.PriceEvent{
		ProductID:  product.ID,
		OldPrice:   product.Price,
		NewPrice:   snapshot.Price,
		Discount:   snapshot.Discount,
		DetectedAt: checkedAt,
	}
	metrics.IncPriceEventForProduct(product.ID)
	s.log.Info().
		Int64("product_id", product.ID).
		Str("asin", product.ASIN).
		Float64("new_price", event.NewPrice).
		Bool("drop", event.IsDrop()).
		Msg("обнаружено изменение цены")

	s.handleEvent(ctx, product, event, settings)
}

func (s *Service) fetchWithRetry(ctx context.Context, rawURL string) (domain.PriceSnapshot, error) {
	var snapshot domain.PriceSnapshot
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.FetchRetries), ctx)
	err := backoff.Retry(func() error {
		fetchCtx := ctx
		if s.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()
		}
		snap, err := s.fetcher.FetchPrice(fetchCtx, rawURL)
		if err != nil {
			return err
		}
		snapshot = snap
		return nil
	}, policy)
	return snapshot, err
}

// handleEvent переводит ценовое событие в действие в зависимости от
// текущего состояния товара.
func (s *Service) handleEvent(ctx context.Context, product domain.Product, event domain.PriceEvent, settings domain.Settings) {
	switch product.State {
	case domain.StateProposed:
		state, err := s.approver(ctx, product.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось отдать товар на согласование")
			return
		}
		if state == domain.StateApproved {
			s.enqueue(ctx, product, domain.PublishCausePriceDrop)
		}
	case domain.StateApproved:
		s.enqueue(ctx, product, domain.PublishCausePriceDrop)
	case domain.StateRejected:
		if !settings.ReopenOnDrop || !event.IsDrop() {
			return
		}
		if settings.MinDropPercent > 0 && event.OldPrice != nil {
			drop := (*event.OldPrice - event.NewPrice) / *event.OldPrice * 100
			if drop < float64(settings.MinDropPercent) {
				return
			}
		}
		reopened, err := s.reopen(ctx, product.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось вернуть товар на согласование")
			return
		}
		if reopened {
			if _, err := s.approver(ctx, product.ID); err != nil {
				s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось отдать возвращённый товар на согласование")
			}
		}
	case domain.StatePendingReview, domain.StatePublished:
		// Ожидающие решения не трогаем, опубликованные перепубликуются
		// только явной командой администратора.
	}
}

func (s *Service) enqueue(ctx context.Context, product domain.Product, cause domain.PublishCause) {
	job := domain.PublishJob{
		ID:          uuid.NewString(),
		ProductID:   product.ID,
		Cause:       cause,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Error().Err(err).Int64("product_id", product.ID).Msg("не удалось поставить задачу публикации")
	}
}
