package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PriceChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_checks_total",
		Help: "Количество проверок цен по результату",
	}, []string{"status"})

	PriceEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "price_events_total",
		Help: "Количество обнаруженных изменений цены",
	})

	PriceEventsByProduct = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_events_by_product_total",
		Help: "Количество ценовых событий по товарам",
	}, []string{"product_id"})

	MonitorCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_cycle_seconds",
		Help:    "Время полного цикла монитора цен",
		Buckets: prometheus.DefBuckets,
	})

	PublishAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_attempts_total",
		Help: "Попытки публикации по результату",
	}, []string{"status"})

	PublishSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_skipped_total",
		Help: "Публикации, пропущенные как уже доставленные",
	})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})

	PublishByChannel = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "publish_by_channel_total",
		Help: "Количество доставленных публикаций по каналам",
	}, []string{"channel_id"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PriceChecksTotal,
		PriceEventsTotal,
		PriceEventsByProduct,
		MonitorCycleSeconds,
		PublishAttemptsTotal,
		PublishSkippedTotal,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
		PublishByChannel,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// IncPriceCheck отмечает результат проверки цены.
func IncPriceCheck(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PriceChecksTotal.WithLabelValues(status).Inc()
}

// IncPublishAttempt отмечает результат попытки публикации.
func IncPublishAttempt(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PublishAttemptsTotal.WithLabelValues(status).Inc()
}

// IncDeliveredForChannel увеличивает счётчик доставок в канал.
func IncDeliveredForChannel(channelID string) {
	PublishByChannel.WithLabelValues(channelID).Inc()
}

// IncPriceEventForProduct увеличивает счётчики ценовых событий.
func IncPriceEventForProduct(productID int64) {
	PriceEventsTotal.Inc()
	PriceEventsByProduct.WithLabelValues(strconv.FormatInt(productID, 10)).Inc()
}
