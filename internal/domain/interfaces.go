package domain

import (
	"context"
	"time"
)

// ProductRepo управляет товарами. Все изменения выполняются как
// read-modify-write с поэнтитной взаимной блокировкой на стороне БД.
type ProductRepo interface {
	CreateProduct(ctx context.Context, product Product) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductByASIN(ctx context.Context, asin string) (Product, error)
	ListTracked(ctx context.Context) ([]Product, error)
	ListByCategory(ctx context.Context, categoryID int64) ([]Product, error)
	// UpdatePrice сохраняет новую цену и время проверки.
	UpdatePrice(ctx context.Context, productID int64, price float64, currency string, checkedAt time.Time) error
	// RecordFetchFailure фиксирует неудачную проверку, не трогая цену.
	RecordFetchFailure(ctx context.Context, productID int64, fetchErr string, checkedAt time.Time) error
	UpdateDetails(ctx context.Context, productID int64, title, imageURL string) error
	// UpdateAffiliateURL сохраняет пересчитанную партнёрскую ссылку.
	UpdateAffiliateURL(ctx context.Context, productID int64, affiliateURL string) error
	SaveDescription(ctx context.Context, productID int64, description string) error
	// TransitionState выполняет условный переход состояния. Возвращает false,
	// если товар уже не в состоянии from — проигравшая сторона гонки.
	TransitionState(ctx context.Context, productID int64, from, to ApprovalState) (bool, error)
	ArchiveProduct(ctx context.Context, productID int64) error
	DeleteProduct(ctx context.Context, productID int64) error
	ReassignCategory(ctx context.Context, fromCategoryID, toCategoryID int64) error
}

// CategoryRepo управляет категориями и их каналами.
type CategoryRepo interface {
	CreateCategory(ctx context.Context, category Category) (Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	SetCategoryChannels(ctx context.Context, categoryID int64, channels []string) error
	CountCategoryProducts(ctx context.Context, categoryID int64) (int, error)
	DeleteCategory(ctx context.Context, categoryID int64) error
}

// PublishRecordRepo ведёт append-only журнал публикаций.
type PublishRecordRepo interface {
	WasDelivered(ctx context.Context, productID int64, channelID string) (bool, error)
	// CreateAttempt создаёт новую запись попытки для пары (товар, канал).
	CreateAttempt(ctx context.Context, productID int64, channelID string) (PublishRecord, error)
	MarkDelivered(ctx context.Context, recordID int64, at time.Time) error
	MarkRetrying(ctx context.Context, recordID int64, attempt int, lastErr string) error
	MarkFailed(ctx context.Context, recordID int64, lastErr string) error
	ListFailed(ctx context.Context, since time.Time) ([]PublishRecord, error)
}

// AdminRepo управляет административными пользователями.
type AdminRepo interface {
	UpsertAdmin(ctx context.Context, admin Admin) (Admin, error)
	RemoveAdmin(ctx context.Context, userID int64) error
	GetAdmin(ctx context.Context, userID int64) (Admin, error)
	ListAdmins(ctx context.Context) ([]Admin, error)
}

// SettingsRepo хранит изменяемые на лету настройки бота.
type SettingsRepo interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, settings Settings) error
}

// PriceFetcher опрашивает страницу товара. Может падать транзиентно.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, rawURL string) (PriceSnapshot, error)
}

// Generator — внешняя генерация текста с собственным таймаутом.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Publisher отправляет пост в канал. Ненадёжен: таймауты и рейт-лимиты
// обрабатывает вызывающая сторона.
type Publisher interface {
	Publish(ctx context.Context, channelID string, payload PostPayload) error
}

// AdminNotifier доставляет администраторам actionable-уведомления.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string) error
}

// PublishQueue — очередь задач на публикацию.
type PublishQueue interface {
	Enqueue(ctx context.Context, job PublishJob) error
	Receive(ctx context.Context) (PublishJob, PublishAckFunc, error)
}

// PublishAckFunc подтверждает обработку либо возвращает задачу в очередь.
type PublishAckFunc func(success bool) error

// PublishJobStatusRepo отслеживает идемпотентность задач между рестартами.
type PublishJobStatusRepo interface {
	// EnsurePublishJob регистрирует попытку и возвращает признак завершённости
	// и номер текущей попытки.
	EnsurePublishJob(ctx context.Context, jobID string) (done bool, attempt int, err error)
	MarkPublishJobDone(ctx context.Context, jobID string) error
}

// Cache — простое TTL-хранилище для межпроцессных замков.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
