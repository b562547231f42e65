package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-affiliate-bot/internal/adapters/bot"
	"tg-affiliate-bot/internal/adapters/license"
	"tg-affiliate-bot/internal/adapters/repo"
	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/config"
	"tg-affiliate-bot/internal/infra/db"
	"tg-affiliate-bot/internal/infra/i18n"
	applog "tg-affiliate-bot/internal/infra/log"
	"tg-affiliate-bot/internal/infra/metrics"
	"tg-affiliate-bot/internal/infra/queue"
	"tg-affiliate-bot/internal/usecase/approval"
	"tg-affiliate-bot/internal/usecase/catalog"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	licenseClient := license.NewClient(cfg.License.URL, cfg.License.Key, cfg.License.Email, cfg.License.Timeout)
	licenseCtx, licenseCancel := context.WithTimeout(ctx, cfg.License.Timeout)
	err := licenseClient.Validate(licenseCtx)
	licenseCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: лицензия не прошла проверку")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var jobs domain.PublishQueue
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewRabbitPublishQueue(cfg.RabbitURL, cfg.Queues.Publish)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobs = queue.NewRedisPublishQueue(redisClient, cfg.Queues.Publish)
	default:
		logger.Fatal().Msg("bot-gateway: не настроена очередь публикаций (RABBITMQ_URL или REDIS_ADDR)")
	}

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot-gateway: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	language := cfg.I18n.Default
	settingsCtx, settingsCancel := context.WithTimeout(ctx, 5*time.Second)
	settings, err := repoAdapter.GetSettings(settingsCtx)
	settingsCancel()
	if err != nil {
		logger.Warn().Err(err).Msg("bot-gateway: настройки недоступны, используем язык по умолчанию")
	} else if settings.Language != "" {
		language = settings.Language
	}
	texts, err := i18n.NewTranslator(cfg.I18n.Dir, language)
	if err != nil {
		logger.Fatal().Err(err).Str("language", language).Msg("bot-gateway: не удалось загрузить переводы")
	}

	catalogService := catalog.NewService(repoAdapter, repoAdapter, repoAdapter)
	approvalService := approval.NewService(repoAdapter, repoAdapter, repoAdapter, logger.With().Str("component", "approval").Logger())

	h := bot.NewHandler(
		botAPI,
		logger.With().Str("component", "bot").Logger(),
		catalogService,
		approvalService,
		repoAdapter,
		repoAdapter,
		repoAdapter,
		repoAdapter,
		jobs,
		texts,
		cfg.Telegram.GodAdminID,
	)

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось зарегистрировать вебхук")
		}
	}

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":8080", Handler: r}
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")
	go func() {
		logger.Info().Msg("bot-gateway: старт")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("bot-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

var _ domain.ProductRepo = (*repo.Postgres)(nil)
var _ domain.PublishRecordRepo = (*repo.Postgres)(nil)
var _ domain.CategoryRepo = (*repo.Postgres)(nil)
var _ domain.AdminRepo = (*repo.Postgres)(nil)
var _ domain.SettingsRepo = (*repo.Postgres)(nil)
