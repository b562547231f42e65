package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-affiliate-bot/internal/adapters/amazon"
	"tg-affiliate-bot/internal/adapters/repo"
	"tg-affiliate-bot/internal/adapters/telegram"
	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/config"
	"tg-affiliate-bot/internal/infra/db"
	applog "tg-affiliate-bot/internal/infra/log"
	"tg-affiliate-bot/internal/infra/metrics"
	"tg-affiliate-bot/internal/infra/queue"
	"tg-affiliate-bot/internal/usecase/approval"
	"tg-affiliate-bot/internal/usecase/monitor"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("monitor: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var jobs domain.PublishQueue
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewRabbitPublishQueue(cfg.RabbitURL, cfg.Queues.Publish)
		if err != nil {
			logger.Fatal().Err(err).Msg("monitor: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobs = queue.NewRedisPublishQueue(redisClient, cfg.Queues.Publish)
	default:
		logger.Fatal().Msg("monitor: не настроена очередь публикаций (RABBITMQ_URL или REDIS_ADDR)")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("monitor: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("monitor: не удалось создать бота")
	}
	notifier := telegram.NewAdminBroadcaster(botAPI, repoAdapter, logger.With().Str("component", "notifier").Logger())

	fetcher := amazon.NewScraper(cfg.Monitor.FetchTimeout)
	approvalService := approval.NewService(repoAdapter, repoAdapter, repoAdapter, logger.With().Str("component", "approval").Logger())

	submit := func(ctx context.Context, productID int64) (domain.ApprovalState, error) {
		state, err := approvalService.Submit(ctx, productID)
		if err != nil {
			return state, err
		}
		if state == domain.StatePendingReview {
			product, getErr := repoAdapter.GetProduct(ctx, productID)
			if getErr != nil {
				logger.Error().Err(getErr).Int64("product_id", productID).Msg("monitor: товар для уведомления не найден")
				return state, nil
			}
			text := fmt.Sprintf("🔔 Товар %s (%s) ждёт решения администратора", product.ASIN, product.Title)
			if err := notifier.NotifyAdmins(ctx, text); err != nil {
				logger.Error().Err(err).Int64("product_id", productID).Msg("monitor: не удалось уведомить администраторов")
			}
		}
		return state, nil
	}
	reopen := func(ctx context.Context, productID int64) (bool, error) {
		return repoAdapter.TransitionState(ctx, productID, domain.StateRejected, domain.StateProposed)
	}

	monitorService := monitor.NewService(
		repoAdapter,
		repoAdapter,
		fetcher,
		jobs,
		submit,
		reopen,
		monitor.Config{
			Concurrency:  cfg.Monitor.Concurrency,
			FetchRetries: cfg.Monitor.FetchRetries,
			FetchTimeout: cfg.Monitor.FetchTimeout,
		},
		logger.With().Str("component", "monitor").Logger(),
	)

	logger.Info().Msg("monitor: запуск цикла проверки цен")
	for {
		if err := monitorService.RunCycle(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("monitor: цикл завершился ошибкой")
		}

		interval := cfg.Monitor.Interval
		settingsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		settings, err := repoAdapter.GetSettings(settingsCtx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("monitor: настройки недоступны, используем интервал из окружения")
		} else if settings.CheckInterval > 0 {
			interval = settings.CheckInterval
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("monitor: остановлен")
			return
		case <-time.After(interval):
		}
	}
}
