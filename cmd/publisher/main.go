package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/adapters/composer"
	"tg-affiliate-bot/internal/adapters/repo"
	"tg-affiliate-bot/internal/adapters/telegram"
	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/cache"
	"tg-affiliate-bot/internal/infra/config"
	"tg-affiliate-bot/internal/infra/db"
	"tg-affiliate-bot/internal/infra/i18n"
	applog "tg-affiliate-bot/internal/infra/log"
	"tg-affiliate-bot/internal/infra/metrics"
	"tg-affiliate-bot/internal/infra/openai"
	"tg-affiliate-bot/internal/infra/queue"
	"tg-affiliate-bot/internal/usecase/compose"
	"tg-affiliate-bot/internal/usecase/publish"
	"tg-affiliate-bot/internal/usecase/routing"
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
		logger.Fatal().Err(err).Msg("publisher: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("publisher: не указан адрес Redis (REDIS_ADDR)")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	onceCache := cache.NewRedis(redisClient)

	var jobs domain.PublishQueue
	if cfg.RabbitURL != "" {
		rabbit, err := queue.NewRabbitPublishQueue(cfg.RabbitURL, cfg.Queues.Publish)
		if err != nil {
			logger.Fatal().Err(err).Msg("publisher: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	} else {
		jobs = queue.NewRedisPublishQueue(redisClient, cfg.Queues.Publish)
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("publisher: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher: не удалось создать бота")
	}
	channelPublisher := telegram.NewPublisher(botAPI, logger.With().Str("component", "publisher").Logger())
	notifier := telegram.NewAdminBroadcaster(botAPI, repoAdapter, logger.With().Str("component", "notifier").Logger())

	language := cfg.I18n.Default
	settingsCtx, settingsCancel := context.WithTimeout(ctx, 5*time.Second)
	settings, err := repoAdapter.GetSettings(settingsCtx)
	settingsCancel()
	if err != nil {
		logger.Warn().Err(err).Msg("publisher: настройки недоступны, используем язык по умолчанию")
	} else if settings.Language != "" {
		language = settings.Language
	}
	texts, err := i18n.NewTranslator(cfg.I18n.Dir, language)
	if err != nil {
		logger.Fatal().Err(err).Str("language", language).Msg("publisher: не удалось загрузить переводы")
	}

	var generator domain.Generator
	if cfg.OpenAI.APIKey != "" {
		openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		generator = composer.NewOpenAI(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("publisher: ключ OpenAI не задан, посты собираются по шаблону")
	}

	composeService := compose.NewService(repoAdapter, repoAdapter, generator, texts, logger.With().Str("component", "compose").Logger())
	routingService := routing.NewService(repoAdapter)
	publishService := publish.NewService(
		repoAdapter,
		repoAdapter,
		composeService,
		routingService,
		channelPublisher,
		notifier,
		onceCache,
		publish.Config{
			Retries:        cfg.Publish.Retries,
			BackoffInitial: cfg.Publish.BackoffInitial,
			BackoffMax:     cfg.Publish.BackoffMax,
			InflightTTL:    cfg.Publish.InflightTTL,
		},
		logger.With().Str("component", "publish").Logger(),
	)

	worker := &jobWorker{
		log:      logger,
		queue:    jobs,
		statuses: repoAdapter,
		service:  publishService,
	}

	logger.Info().Msg("publisher: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("publisher: остановлен")
}

type jobWorker struct {
	log      zerolog.Logger
	queue    domain.PublishQueue
	statuses domain.PublishJobStatusRepo
	service  *publish.Service
}

const maxDeliveryAttempts = 5

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("publisher: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Int64("product_id", job.ProductID).
			Str("cause", string(job.Cause)).
			Bool("force", job.Force).
			Logger()

		if job.ID == "" {
			jobLog.Error().Msg("publisher: получена задача без идентификатора, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("publisher: не удалось подтвердить задачу без идентификатора")
			}
			continue
		}

		done, attempt, err := w.statuses.EnsurePublishJob(ctx, job.ID)
		if err != nil {
			jobLog.Error().Err(err).Msg("publisher: не удалось зарегистрировать задачу")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("publisher: не удалось вернуть задачу в очередь")
			}
			time.Sleep(time.Second)
			continue
		}

		jobLog = jobLog.With().Int("attempt", attempt).Logger()

		if done {
			jobLog.Info().Msg("publisher: задача уже была выполнена, подтверждаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("publisher: не удалось подтвердить выполненную задачу")
			}
			continue
		}

		handleErr := w.service.Handle(ctx, job)

		if handleErr != nil && attempt < maxDeliveryAttempts {
			jobLog.Warn().Err(handleErr).Msg("publisher: задача завершилась ошибкой, повторим позже")
			if err := ack(false); err != nil {
				jobLog.Error().Err(err).Msg("publisher: не удалось вернуть задачу после ошибки")
			}
			continue
		}

		if handleErr != nil {
			jobLog.Error().Err(handleErr).Msg("publisher: достигнут предел попыток, помечаем задачу завершённой")
		}

		if err := w.statuses.MarkPublishJobDone(ctx, job.ID); err != nil {
			jobLog.Error().Err(err).Msg("publisher: не удалось пометить задачу выполненной")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("publisher: не удалось вернуть задачу после ошибки статуса")
			}
			time.Sleep(time.Second)
			continue
		}

		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("publisher: не удалось подтвердить задачу")
		}
	}
}
