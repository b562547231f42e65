package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-affiliate-bot/internal/domain"
	"tg-affiliate-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ProductRepo          = (*Postgres)(nil)
	_ domain.CategoryRepo         = (*Postgres)(nil)
	_ domain.PublishRecordRepo    = (*Postgres)(nil)
	_ domain.AdminRepo            = (*Postgres)(nil)
	_ domain.SettingsRepo         = (*Postgres)(nil)
	_ domain.PublishJobStatusRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const productColumns = `id, asin, title, raw_url, affiliate_url, image_url, price, currency, category_id, description, approval_state, archived, last_checked_at, last_fetch_err, version, added_by, created_at, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		product   domain.Product
		price     sql.NullFloat64
		currency  sql.NullString
		desc      sql.NullString
		imageURL  sql.NullString
		checkedAt sql.NullTime
		fetchErr  sql.NullString
	)
	err := row.Scan(&product.ID, &product.ASIN, &product.Title, &product.RawURL, &product.AffiliateURL, &imageURL, &price, &currency, &product.CategoryID, &desc, &product.State, &product.Archived, &checkedAt, &fetchErr, &product.Version, &product.AddedBy, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if price.Valid {
		v := price.Float64
		product.Price = &v
	}
	if currency.Valid {
		product.Currency = currency.String
	}
	if desc.Valid {
		product.Description = desc.String
	}
	if imageURL.Valid {
		product.ImageURL = imageURL.String
	}
	if checkedAt.Valid {
		ts := checkedAt.Time
		product.LastCheckedAt = &ts
	}
	if fetchErr.Valid {
		product.LastFetchErr = fetchErr.String
	}
	return product, nil
}

// CreateProduct сохраняет новый товар.
func (p *Postgres) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO products (asin, title, raw_url, affiliate_url, image_url, category_id, approval_state, added_by)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8)
RETURNING `+productColumns+`
`, product.ASIN, product.Title, product.RawURL, product.AffiliateURL, product.ImageURL, product.CategoryID, product.State, product.AddedBy)
	created, err := scanProduct(row)
	metrics.ObserveNetworkRequest("postgres", "products_insert", "products", start, err)
	return created, err
}

// GetProduct возвращает товар по идентификатору.
func (p *Postgres) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	product, err := scanProduct(row)
	metrics.ObserveNetworkRequest("postgres", "products_get", "products", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return product, err
}

// GetProductByASIN возвращает товар по ASIN.
func (p *Postgres) GetProductByASIN(ctx context.Context, asin string) (domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE asin=$1`, asin)
	product, err := scanProduct(row)
	metrics.ObserveNetworkRequest("postgres", "products_get_by_asin", "products", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return product, err
}

// ListTracked возвращает неархивированные товары для монитора цен.
func (p *Postgres) ListTracked(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+productColumns+`
FROM products
WHERE archived = false
ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "products_list_tracked", "products", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// ListByCategory возвращает товары категории.
func (p *Postgres) ListByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+productColumns+`
FROM products
WHERE category_id=$1
ORDER BY id
`, categoryID)
	metrics.ObserveNetworkRequest("postgres", "products_list_by_category", "products", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// UpdatePrice сохраняет новую цену и время проверки.
func (p *Postgres) UpdatePrice(ctx context.Context, productID int64, price float64, currency string, checkedAt time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE products
SET price=$2, currency=$3, last_checked_at=$4, last_fetch_err=NULL, version=version+1, updated_at=now()
WHERE id=$1
`, productID, price, currency, checkedAt)
	metrics.ObserveNetworkRequest("postgres", "products_update_price", "products", start, err)
	return err
}

// RecordFetchFailure фиксирует неудачную проверку, не трогая цену.
func (p *Postgres) RecordFetchFailure(ctx context.Context, productID int64, fetchErr string, checkedAt time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE products
SET last_checked_at=$3, last_fetch_err=$2, updated_at=now()
WHERE id=$1
`, productID, fetchErr, checkedAt)
	metrics.ObserveNetworkRequest("postgres", "products_record_fetch_failure", "products", start, err)
	return err
}

// UpdateDetails обновляет заголовок и картинку товара.
func (p *Postgres) UpdateDetails(ctx context.Context, productID int64, title, imageURL string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE products
SET title=COALESCE(NULLIF($2,''), title), image_url=COALESCE(NULLIF($3,''), image_url), updated_at=now()
WHERE id=$1
`, productID, title, imageURL)
	metrics.ObserveNetworkRequest("postgres", "products_update_details", "products", start, err)
	return err
}

// UpdateAffiliateURL сохраняет пересчитанную партнёрскую ссылку.
func (p *Postgres) UpdateAffiliateURL(ctx context.Context, productID int64, affiliateURL string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE products SET affiliate_url=$2, updated_at=now() WHERE id=$1`, productID, affiliateURL)
	metrics.ObserveNetworkRequest("postgres", "products_update_affiliate_url", "products", start, err)
	return err
}

// SaveDescription сохраняет сгенерированное описание.
func (p *Postgres) SaveDescription(ctx context.Context, productID int64, description string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE products SET description=$2, updated_at=now() WHERE id=$1`, productID, description)
	metrics.ObserveNetworkRequest("postgres", "products_save_description", "products", start, err)
	return err
}

// TransitionState выполняет условный переход состояния. Условие в WHERE
// делает переход атомарным: из двух конкурирующих операций выигрывает
// ровно одна.
func (p *Postgres) TransitionState(ctx context.Context, productID int64, from, to domain.ApprovalState) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE products
SET approval_state=$3, version=version+1, updated_at=now()
WHERE id=$1 AND approval_state=$2
`, productID, from, to)
	metrics.ObserveNetworkRequest("postgres", "products_transition_state", "products", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ArchiveProduct выводит товар из мониторинга.
func (p *Postgres) ArchiveProduct(ctx context.Context, productID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE products SET archived=true, updated_at=now() WHERE id=$1`, productID)
	metrics.ObserveNetworkRequest("postgres", "products_archive", "products", start, err)
	return err
}

// DeleteProduct удаляет товар вместе с журналом публикаций.
func (p *Postgres) DeleteProduct(ctx context.Context, productID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, productID)
	metrics.ObserveNetworkRequest("postgres", "products_delete", "products", start, err)
	return err
}

// ReassignCategory переносит товары из одной категории в другую.
func (p *Postgres) ReassignCategory(ctx context.Context, fromCategoryID, toCategoryID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE products SET category_id=$2, updated_at=now() WHERE category_id=$1`, fromCategoryID, toCategoryID)
	metrics.ObserveNetworkRequest("postgres", "products_reassign_category", "products", start, err)
	return err
}

// CreateCategory сохраняет категорию.
func (p *Postgres) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO categories (name, channels, created_by)
VALUES ($1, $2, $3)
RETURNING id, name, channels, created_by, created_at
`, category.Name, category.Channels, category.CreatedBy).Scan(&category.ID, &category.Name, &category.Channels, &category.CreatedBy, &category.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "categories_insert", "categories", start, err)
	return category, err
}

// GetCategory возвращает категорию.
func (p *Postgres) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var category domain.Category
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, channels, created_by, created_at FROM categories WHERE id=$1
`, id).Scan(&category.ID, &category.Name, &category.Channels, &category.CreatedBy, &category.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "categories_get", "categories", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, domain.ErrNotFound
	}
	return category, err
}

// ListCategories возвращает категории по алфавиту.
func (p *Postgres) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, name, channels, created_by, created_at FROM categories ORDER BY name`)
	metrics.ObserveNetworkRequest("postgres", "categories_list", "categories", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []domain.Category
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Channels, &category.CreatedBy, &category.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// SetCategoryChannels заменяет список каналов категории.
func (p *Postgres) SetCategoryChannels(ctx context.Context, categoryID int64, channels []string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE categories SET channels=$2 WHERE id=$1`, categoryID, channels)
	metrics.ObserveNetworkRequest("postgres", "categories_set_channels", "categories", start, err)
	return err
}

// CountCategoryProducts считает товары категории.
func (p *Postgres) CountCategoryProducts(ctx context.Context, categoryID int64) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE category_id=$1`, categoryID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "categories_count_products", "products", start, err)
	return count, err
}

// DeleteCategory удаляет категорию.
func (p *Postgres) DeleteCategory(ctx context.Context, categoryID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM categories WHERE id=$1`, categoryID)
	metrics.ObserveNetworkRequest("postgres", "categories_delete", "categories", start, err)
	return err
}

// WasDelivered проверяет, была ли пара (товар, канал) уже доставлена.
func (p *Postgres) WasDelivered(ctx context.Context, productID int64, channelID string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM publish_records
    WHERE product_id=$1 AND channel_id=$2 AND status='delivered'
)
`, productID, channelID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "publish_records_was_delivered", "publish_records", start, err)
	return exists, err
}

// CreateAttempt создаёт новую запись попытки для пары (товар, канал).
// Записи append-only: повторная публикация всегда новая строка.
func (p *Postgres) CreateAttempt(ctx context.Context, productID int64, channelID string) (domain.PublishRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var record domain.PublishRecord
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO publish_records (product_id, channel_id, status, attempt)
VALUES ($1, $2, 'retrying', 0)
RETURNING id, product_id, channel_id, status, attempt, created_at, updated_at
`, productID, channelID).Scan(&record.ID, &record.ProductID, &record.ChannelID, &record.Status, &record.Attempt, &record.CreatedAt, &record.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "publish_records_insert", "publish_records", start, err)
	return record, err
}

// MarkDelivered помечает запись доставленной.
func (p *Postgres) MarkDelivered(ctx context.Context, recordID int64, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE publish_records SET status='delivered', published_at=$2, updated_at=now() WHERE id=$1
`, recordID, at)
	metrics.ObserveNetworkRequest("postgres", "publish_records_mark_delivered", "publish_records", start, err)
	return err
}

// MarkRetrying фиксирует неудачную попытку.
func (p *Postgres) MarkRetrying(ctx context.Context, recordID int64, attempt int, lastErr string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE publish_records SET status='retrying', attempt=$2, last_error=$3, updated_at=now() WHERE id=$1
`, recordID, attempt, lastErr)
	metrics.ObserveNetworkRequest("postgres", "publish_records_mark_retrying", "publish_records", start, err)
	return err
}

// MarkFailed помечает запись провалившейся после исчерпания повторов.
func (p *Postgres) MarkFailed(ctx context.Context, recordID int64, lastErr string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE publish_records SET status='failed', last_error=$2, updated_at=now() WHERE id=$1
`, recordID, lastErr)
	metrics.ObserveNetworkRequest("postgres", "publish_records_mark_failed", "publish_records", start, err)
	return err
}

// ListFailed возвращает провалившиеся доставки с указанного момента.
func (p *Postgres) ListFailed(ctx context.Context, since time.Time) ([]domain.PublishRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, product_id, channel_id, status, attempt, COALESCE(last_error,''), published_at, created_at, updated_at
FROM publish_records
WHERE status='failed' AND updated_at >= $1
ORDER BY updated_at DESC
`, since)
	metrics.ObserveNetworkRequest("postgres", "publish_records_list_failed", "publish_records", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.PublishRecord
	for rows.Next() {
		var record domain.PublishRecord
		var publishedAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.ProductID, &record.ChannelID, &record.Status, &record.Attempt, &record.LastError, &publishedAt, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, err
		}
		if publishedAt.Valid {
			ts := publishedAt.Time
			record.PublishedAt = &ts
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpsertAdmin сохраняет администратора.
func (p *Postgres) UpsertAdmin(ctx context.Context, admin domain.Admin) (domain.Admin, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO admins (user_id, username, first_name, role, added_by)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5)
ON CONFLICT (user_id) DO UPDATE SET
    username=COALESCE(EXCLUDED.username, admins.username),
    first_name=COALESCE(EXCLUDED.first_name, admins.first_name),
    role=EXCLUDED.role
RETURNING user_id, COALESCE(username,''), COALESCE(first_name,''), role, added_by, created_at
`, admin.UserID, admin.Username, admin.FirstName, admin.Role, admin.AddedBy).Scan(&admin.UserID, &admin.Username, &admin.FirstName, &admin.Role, &admin.AddedBy, &admin.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "admins_upsert", "admins", start, err)
	return admin, err
}

// RemoveAdmin удаляет администратора.
func (p *Postgres) RemoveAdmin(ctx context.Context, userID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM admins WHERE user_id=$1 AND role <> 'god'`, userID)
	metrics.ObserveNetworkRequest("postgres", "admins_delete", "admins", start, err)
	return err
}

// GetAdmin возвращает администратора по Telegram ID.
func (p *Postgres) GetAdmin(ctx context.Context, userID int64) (domain.Admin, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var admin domain.Admin
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, COALESCE(username,''), COALESCE(first_name,''), role, added_by, created_at
FROM admins WHERE user_id=$1
`, userID).Scan(&admin.UserID, &admin.Username, &admin.FirstName, &admin.Role, &admin.AddedBy, &admin.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "admins_get", "admins", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Admin{}, domain.ErrNotFound
	}
	return admin, err
}

// ListAdmins возвращает всех администраторов.
func (p *Postgres) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, COALESCE(username,''), COALESCE(first_name,''), role, added_by, created_at
FROM admins ORDER BY created_at
`)
	metrics.ObserveNetworkRequest("postgres", "admins_list", "admins", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var admins []domain.Admin
	for rows.Next() {
		var admin domain.Admin
		if err := rows.Scan(&admin.UserID, &admin.Username, &admin.FirstName, &admin.Role, &admin.AddedBy, &admin.CreatedAt); err != nil {
			return nil, err
		}
		admins = append(admins, admin)
	}
	return admins, rows.Err()
}

// GetSettings возвращает настройки бота. Таблица одно-строчная, при
// пустой таблице возвращаются значения по умолчанию.
func (p *Postgres) GetSettings(ctx context.Context) (domain.Settings, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		settings domain.Settings
		checkSec int64
		delaySec int64
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT affiliate_tag, approval_mode, COALESCE(review_channel_id,''), COALESCE(ai_prompt,''), ai_prompt_enabled,
       COALESCE(button_text,''), check_interval_seconds, product_delay_seconds, monitor_enabled,
       language, reopen_on_drop, min_drop_percent, updated_by, updated_at
FROM bot_settings WHERE id=1
`).Scan(&settings.AffiliateTag, &settings.ApprovalMode, &settings.ReviewChannelID, &settings.AIPrompt, &settings.AIPromptEnabled,
		&settings.ButtonText, &checkSec, &delaySec, &settings.MonitorEnabled,
		&settings.Language, &settings.ReopenOnDrop, &settings.MinDropPercent, &settings.UpdatedBy, &settings.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "bot_settings_get", "bot_settings", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Settings{ApprovalMode: domain.ApprovalManual, MonitorEnabled: true}, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	settings.CheckInterval = time.Duration(checkSec) * time.Second
	settings.ProductDelay = time.Duration(delaySec) * time.Second
	return settings, nil
}

// UpdateSettings сохраняет настройки бота.
func (p *Postgres) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO bot_settings (id, affiliate_tag, approval_mode, review_channel_id, ai_prompt, ai_prompt_enabled,
                          button_text, check_interval_seconds, product_delay_seconds, monitor_enabled,
                          language, reopen_on_drop, min_drop_percent, updated_by, updated_at)
VALUES (1, $1, $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (id) DO UPDATE SET
    affiliate_tag=EXCLUDED.affiliate_tag,
    approval_mode=EXCLUDED.approval_mode,
    review_channel_id=EXCLUDED.review_channel_id,
    ai_prompt=EXCLUDED.ai_prompt,
    ai_prompt_enabled=EXCLUDED.ai_prompt_enabled,
    button_text=EXCLUDED.button_text,
    check_interval_seconds=EXCLUDED.check_interval_seconds,
    product_delay_seconds=EXCLUDED.product_delay_seconds,
    monitor_enabled=EXCLUDED.monitor_enabled,
    language=EXCLUDED.language,
    reopen_on_drop=EXCLUDED.reopen_on_drop,
    min_drop_percent=EXCLUDED.min_drop_percent,
    updated_by=EXCLUDED.updated_by,
    updated_at=now()
`, settings.AffiliateTag, settings.ApprovalMode, settings.ReviewChannelID, settings.AIPrompt, settings.AIPromptEnabled,
		settings.ButtonText, int64(settings.CheckInterval/time.Second), int64(settings.ProductDelay/time.Second), settings.MonitorEnabled,
		settings.Language, settings.ReopenOnDrop, settings.MinDropPercent, settings.UpdatedBy)
	metrics.ObserveNetworkRequest("postgres", "bot_settings_upsert", "bot_settings", start, err)
	return err
}

// EnsurePublishJob регистрирует попытку обработки задачи публикации.
func (p *Postgres) EnsurePublishJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		done     sql.NullTime
		attempts int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO publish_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = publish_job_statuses.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "publish_job_statuses_upsert", "publish_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return done.Valid, attempts, nil
}

// MarkPublishJobDone помечает задачу завершённой.
func (p *Postgres) MarkPublishJobDone(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE publish_job_statuses
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "publish_job_statuses_mark_done", "publish_job_statuses", start, err)
	return err
}
