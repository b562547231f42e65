package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tg-affiliate-bot/internal/adapters/amazon"
	"tg-affiliate-bot/internal/domain"
)

// ErrDuplicateProduct возвращается, если товар с таким ASIN уже отслеживается.
var ErrDuplicateProduct = errors.New("товар уже отслеживается")

// ErrCategoryNameEmpty возвращается при пустом имени категории.
var ErrCategoryNameEmpty = errors.New("пустое имя категории")

// Service управляет каталогом товаров и категорий.
type Service struct {
	products   domain.ProductRepo
	categories domain.CategoryRepo
	settings   domain.SettingsRepo
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepo, categories domain.CategoryRepo, settings domain.SettingsRepo) *Service {
	return &Service{products: products, categories: categories, settings: settings}
}

// AddProduct нормализует ссылку и создаёт товар в состоянии Proposed.
func (s *Service) AddProduct(ctx context.Context, rawURL string, categoryID, addedBy int64) (domain.Product, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, fmt.Errorf("получение настроек: %w", err)
	}

	asin, err := amazon.ExtractASIN(rawURL)
	if err != nil {
		return domain.Product{}, err
	}
	affiliateURL, err := amazon.Normalize(rawURL, settings.AffiliateTag)
	if err != nil {
		return domain.Product{}, err
	}

	if existing, err := s.products.GetProductByASIN(ctx, asin); err == nil && !existing.Archived {
		return existing, ErrDuplicateProduct
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Product{}, fmt.Errorf("поиск товара по ASIN: %w", err)
	}

	if _, err := s.categories.GetCategory(ctx, categoryID); err != nil {
		return domain.Product{}, fmt.Errorf("получение категории: %w", err)
	}

	product := domain.Product{
		ASIN:         asin,
		RawURL:       strings.TrimSpace(rawURL),
		AffiliateURL: affiliateURL,
		CategoryID:   categoryID,
		State:        domain.StateProposed,
		AddedBy:      addedBy,
	}
	created, err := s.products.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, fmt.Errorf("создание товара: %w", err)
	}
	return created, nil
}

// RenormalizeProduct пересчитывает и сохраняет партнёрскую ссылку после
// смены тега. Операция идемпотентна: при неизменном теге ссылка не меняется.
func (s *Service) RenormalizeProduct(ctx context.Context, productID int64) (domain.Product, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("получение товара: %w", err)
	}
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return domain.Product{}, fmt.Errorf("получение настроек: %w", err)
	}
	return s.renormalize(ctx, product, settings.AffiliateTag)
}

// RenormalizeAll пересчитывает ссылки всех отслеживаемых товаров и
// возвращает число фактически обновлённых.
func (s *Service) RenormalizeAll(ctx context.Context) (int, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("получение настроек: %w", err)
	}
	products, err := s.products.ListTracked(ctx)
	if err != nil {
		return 0, fmt.Errorf("список товаров: %w", err)
	}
	updated := 0
	for _, product := range products {
		fresh, err := s.renormalize(ctx, product, settings.AffiliateTag)
		if err != nil {
			return updated, fmt.Errorf("товар %d: %w", product.ID, err)
		}
		if fresh.AffiliateURL != product.AffiliateURL {
			updated++
		}
	}
	return updated, nil
}

func (s *Service) renormalize(ctx context.Context, product domain.Product, tag string) (domain.Product, error) {
	affiliateURL, err := amazon.Normalize(product.RawURL, tag)
	if err != nil {
		return domain.Product{}, err
	}
	if affiliateURL == product.AffiliateURL {
		return product, nil
	}
	if err := s.products.UpdateAffiliateURL(ctx, product.ID, affiliateURL); err != nil {
		return domain.Product{}, fmt.Errorf("сохранение партнёрской ссылки: %w", err)
	}
	product.AffiliateURL = affiliateURL
	return product, nil
}

// GetProduct возвращает товар.
func (s *Service) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	return s.products.GetProduct(ctx, productID)
}

// ListProducts возвращает товары категории.
func (s *Service) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return s.products.ListByCategory(ctx, categoryID)
}

// DeleteProduct удаляет товар из каталога.
func (s *Service) DeleteProduct(ctx context.Context, productID int64) error {
	return s.products.DeleteProduct(ctx, productID)
}

// CreateCategory создаёт категорию.
func (s *Service) CreateCategory(ctx context.Context, name string, channels []string, createdBy int64) (domain.Category, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return domain.Category{}, ErrCategoryNameEmpty
	}
	category := domain.Category{
		Name:      trimmed,
		Channels:  normalizeChannels(channels),
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.categories.CreateCategory(ctx, category)
	if err != nil {
		return domain.Category{}, fmt.Errorf("создание категории: %w", err)
	}
	return created, nil
}

// ListCategories возвращает все категории.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.ListCategories(ctx)
}

// SetCategoryChannels заменяет список каналов категории.
func (s *Service) SetCategoryChannels(ctx context.Context, categoryID int64, channels []string) error {
	if _, err := s.categories.GetCategory(ctx, categoryID); err != nil {
		return fmt.Errorf("получение категории: %w", err)
	}
	return s.categories.SetCategoryChannels(ctx, categoryID, normalizeChannels(channels))
}

// DeleteCategory удаляет категорию. Категория с товарами требует
// переназначения: товары никогда не остаются без категории.
func (s *Service) DeleteCategory(ctx context.Context, categoryID, reassignTo int64) error {
	count, err := s.categories.CountCategoryProducts(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("подсчёт товаров категории: %w", err)
	}
	if count > 0 {
		if reassignTo == 0 || reassignTo == categoryID {
			return domain.ErrCategoryInUse
		}
		if _, err := s.categories.GetCategory(ctx, reassignTo); err != nil {
			return fmt.Errorf("получение целевой категории: %w", err)
		}
		if err := s.products.ReassignCategory(ctx, categoryID, reassignTo); err != nil {
			return fmt.Errorf("переназначение товаров: %w", err)
		}
	}
	return s.categories.DeleteCategory(ctx, categoryID)
}

func normalizeChannels(channels []string) []string {
	seen := make(map[string]struct{}, len(channels))
	cleaned := make([]string, 0, len(channels))
	for _, channel := range channels {
		trimmed := strings.TrimSpace(channel)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}
