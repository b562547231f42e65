package domain

import "time"

// Product описывает отслеживаемый товар Amazon.
type Product struct {
	ID            int64
	ASIN          string
	Title         string
	RawURL        string
	AffiliateURL  string
	ImageURL      string
	Price         *float64
	Currency      string
	CategoryID    int64
	Description   string
	State         ApprovalState
	Archived      bool
	LastCheckedAt *time.Time
	LastFetchErr  string
	Version       int64
	AddedBy       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPrice сообщает, была ли цена хотя бы раз успешно получена.
func (p Product) HasPrice() bool {
	return p.Price != nil && *p.Price > 0
}

// Category группирует товары и определяет каналы публикации.
type Category struct {
	ID        int64
	Name      string
	Channels  []string
	CreatedBy int64
	CreatedAt time.Time
}

// DeliveryStatus описывает состояние доставки в конкретный канал.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryFailed    DeliveryStatus = "failed"
)

// PublishRecord фиксирует попытку публикации товара в канал.
// Терминальные записи не мутируются: принудительная повторная
// публикация создаёт новую запись.
type PublishRecord struct {
	ID          int64
	ProductID   int64
	ChannelID   string
	Status      DeliveryStatus
	Attempt     int
	LastError   string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PriceEvent описывает обнаруженное изменение цены. Событие эфемерно
// и живёт только до постановки задачи на публикацию.
type PriceEvent struct {
	ProductID  int64
	OldPrice   *float64
	NewPrice   float64
	Discount   *DiscountInfo
	DetectedAt time.Time
}

// IsDrop сообщает, подешевел ли товар.
func (e PriceEvent) IsDrop() bool {
	return e.OldPrice != nil && e.NewPrice < *e.OldPrice
}

// DiscountInfo содержит данные о скидке со страницы товара.
type DiscountInfo struct {
	Percentage      int
	OriginalPrice   float64
	DiscountedPrice float64
}

// PriceSnapshot — результат опроса страницы товара.
type PriceSnapshot struct {
	Title    string
	ImageURL string
	Price    float64
	Currency string
	Discount *DiscountInfo
}

// PostPayload — собранное содержимое поста для канала.
type PostPayload struct {
	Text       string
	ImageURL   string
	ButtonText string
	ButtonURL  string
	FromAI     bool
}

// Destination связывает канал с готовым к отправке содержимым.
type Destination struct {
	ChannelID string
	Payload   PostPayload
}
