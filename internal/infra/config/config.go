package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		GodAdminID int64  `envconfig:"TG_GOD_ADMIN_ID"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Publish string `envconfig:"PUBLISH_QUEUE_KEY" default:"publish_jobs"`
	} `envconfig:""`

	Affiliate struct {
		Tag string `envconfig:"AFFILIATE_TAG"`
	} `envconfig:""`

	License struct {
		URL     string        `envconfig:"LICENSE_API_URL" default:"https://affiliate.doublegram.com"`
		Key     string        `envconfig:"LICENSE_CODE"`
		Email   string        `envconfig:"LICENSE_EMAIL"`
		Timeout time.Duration `envconfig:"LICENSE_TIMEOUT" default:"30s"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4.1-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Monitor struct {
		Interval     time.Duration `envconfig:"MONITOR_INTERVAL" default:"30m"`
		Concurrency  int           `envconfig:"MONITOR_CONCURRENCY" default:"4"`
		FetchRetries uint64        `envconfig:"MONITOR_FETCH_RETRIES" default:"3"`
		FetchTimeout time.Duration `envconfig:"MONITOR_FETCH_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Publish struct {
		Retries        uint64        `envconfig:"PUBLISH_RETRIES" default:"4"`
		BackoffInitial time.Duration `envconfig:"PUBLISH_BACKOFF_INITIAL" default:"1s"`
		BackoffMax     time.Duration `envconfig:"PUBLISH_BACKOFF_MAX" default:"30s"`
		InflightTTL    time.Duration `envconfig:"PUBLISH_INFLIGHT_TTL" default:"2m"`
	} `envconfig:""`

	I18n struct {
		Dir     string `envconfig:"TRANSLATIONS_DIR" default:"translations"`
		Default string `envconfig:"DEFAULT_LANGUAGE" default:"Italian"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
