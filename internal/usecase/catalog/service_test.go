package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tg-affiliate-bot/internal/domain"
)

type fakeProductRepo struct {
	byASIN     map[string]domain.Product
	created    []domain.Product
	reassigned [][2]int64
	relinked   map[int64]string
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{byASIN: make(map[string]domain.Product), relinked: make(map[int64]string)}
}

func (r *fakeProductRepo) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.ID = int64(len(r.created) + 1)
	r.created = append(r.created, p)
	r.byASIN[p.ASIN] = p
	return p, nil
}
func (r *fakeProductRepo) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	for _, p := range r.created {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}
func (r *fakeProductRepo) GetProductByASIN(ctx context.Context, asin string) (domain.Product, error) {
	p, ok := r.byASIN[asin]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}
func (r *fakeProductRepo) ListTracked(ctx context.Context) ([]domain.Product, error) {
	tracked := make([]domain.Product, 0, len(r.created))
	for _, p := range r.created {
		if !p.Archived {
			tracked = append(tracked, p)
		}
	}
	return tracked, nil
}
func (r *fakeProductRepo) ListByCategory(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return nil, nil
}
func (r *fakeProductRepo) UpdatePrice(ctx context.Context, productID int64, price float64, currency string, checkedAt time.Time) error {
	return nil
}
func (r *fakeProductRepo) RecordFetchFailure(ctx context.Context, productID int64, fetchErr string, checkedAt time.Time) error {
	return nil
}
func (r *fakeProductRepo) UpdateDetails(ctx context.Context, productID int64, title, imageURL string) error {
	return nil
}
func (r *fakeProductRepo) UpdateAffiliateURL(ctx context.Context, productID int64, affiliateURL string) error {
	r.relinked[productID] = affiliateURL
	for i, p := range r.created {
		if p.ID == productID {
			r.created[i].AffiliateURL = affiliateURL
			r.byASIN[p.ASIN] = r.created[i]
		}
	}
	return nil
}
func (r *fakeProductRepo) SaveDescription(ctx context.Context, productID int64, description string) error {
	return nil
}
func (r *fakeProductRepo) TransitionState(ctx context.Context, productID int64, from, to domain.ApprovalState) (bool, error) {
	return true, nil
}
func (r *fakeProductRepo) ArchiveProduct(ctx context.Context, productID int64) error { return nil }
func (r *fakeProductRepo) DeleteProduct(ctx context.Context, productID int64) error  { return nil }
func (r *fakeProductRepo) ReassignCategory(ctx context.Context, fromCategoryID, toCategoryID int64) error {
	r.reassigned = append(r.reassigned, [2]int64{fromCategoryID, toCategoryID})
	return nil
}

type fakeCategoryRepo struct {
	categories map[int64]domain.Category
	counts     map[int64]int
	deleted    []int64
}

func newFakeCategoryRepo() *fakeCategoryRepo {
	return &fakeCategoryRepo{categories: make(map[int64]domain.Category), counts: make(map[int64]int)}
}

func (r *fakeCategoryRepo) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	category.ID = int64(len(r.categories) + 1)
	r.categories[category.ID] = category
	return category, nil
}
func (r *fakeCategoryRepo) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	category, ok := r.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrNotFound
	}
	return category, nil
}
func (r *fakeCategoryRepo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return nil, nil
}
func (r *fakeCategoryRepo) SetCategoryChannels(ctx context.Context, categoryID int64, channels []string) error {
	category := r.categories[categoryID]
	category.Channels = channels
	r.categories[categoryID] = category
	return nil
}
func (r *fakeCategoryRepo) CountCategoryProducts(ctx context.Context, categoryID int64) (int, error) {
	return r.counts[categoryID], nil
}
func (r *fakeCategoryRepo) DeleteCategory(ctx context.Context, categoryID int64) error {
	delete(r.categories, categoryID)
	r.deleted = append(r.deleted, categoryID)
	return nil
}

type fixedSettingsRepo struct {
	settings domain.Settings
}

func (r *fixedSettingsRepo) GetSettings(ctx context.Context) (domain.Settings, error) {
	return r.settings, nil
}
func (r *fixedSettingsRepo) UpdateSettings(ctx context.Context, settings domain.Settings) error {
	return nil
}

func newCatalogService(products *fakeProductRepo, categories *fakeCategoryRepo, tag string) *Service {
	return NewService(products, categories, &fixedSettingsRepo{settings: domain.Settings{AffiliateTag: tag}})
}

func TestAddProduct(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	category, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "tech"})
	svc := newCatalogService(products, categories, "mytag-21")

	product, err := svc.AddProduct(context.Background(), "https://www.amazon.it/dp/B0ABC12345?ref=xyz", category.ID, 42)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if product.ASIN != "B0ABC12345" {
		t.Fatalf("неверный ASIN: %s", product.ASIN)
	}
	if product.State != domain.StateProposed {
		t.Fatalf("новый товар должен быть proposed, состояние: %s", product.State)
	}
	if !strings.Contains(product.AffiliateURL, "tag=mytag-21") {
		t.Fatalf("партнёрский тег не подставлен: %s", product.AffiliateURL)
	}
	if product.AddedBy != 42 {
		t.Fatalf("не сохранён автор: %d", product.AddedBy)
	}
}

func TestAddProductInvalidURL(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	svc := newCatalogService(products, categories, "mytag-21")

	_, err := svc.AddProduct(context.Background(), "https://example.com/not-amazon", 1, 1)
	if !errors.Is(err, domain.ErrInvalidURL) {
		t.Fatalf("ожидали ErrInvalidURL, получили %v", err)
	}
	if len(products.created) != 0 {
		t.Fatal("невалидная ссылка не должна создавать товар")
	}
}

func TestAddProductDuplicate(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	category, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "tech"})
	svc := newCatalogService(products, categories, "mytag-21")

	if _, err := svc.AddProduct(context.Background(), "https://www.amazon.it/dp/B0ABC12345", category.ID, 1); err != nil {
		t.Fatalf("первое добавление: %v", err)
	}
	_, err := svc.AddProduct(context.Background(), "https://www.amazon.it/gp/product/B0ABC12345", category.ID, 1)
	if !errors.Is(err, ErrDuplicateProduct) {
		t.Fatalf("ожидали ErrDuplicateProduct, получили %v", err)
	}
	if len(products.created) != 1 {
		t.Fatalf("дубликат не должен создавать товар, создано: %d", len(products.created))
	}
}

func TestAddProductUnknownCategory(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	svc := newCatalogService(products, categories, "mytag-21")

	_, err := svc.AddProduct(context.Background(), "https://www.amazon.it/dp/B0ABC12345", 99, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestRenormalizeProductPersistsNewTag(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	category, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "tech"})
	settings := &fixedSettingsRepo{settings: domain.Settings{AffiliateTag: "old-20"}}
	svc := NewService(products, categories, settings)

	product, err := svc.AddProduct(context.Background(), "https://www.amazon.it/dp/B0ABC12345", category.ID, 1)
	if err != nil {
		t.Fatalf("добавление товара: %v", err)
	}

	settings.settings.AffiliateTag = "new-21"
	fresh, err := svc.RenormalizeProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !strings.Contains(fresh.AffiliateURL, "tag=new-21") {
		t.Fatalf("новый тег не подставлен: %s", fresh.AffiliateURL)
	}
	saved, ok := products.relinked[product.ID]
	if !ok {
		t.Fatal("пересчитанная ссылка не сохранена в хранилище")
	}
	if saved != fresh.AffiliateURL {
		t.Fatalf("сохранённая ссылка расходится с возвращённой: %s != %s", saved, fresh.AffiliateURL)
	}
}

func TestRenormalizeProductSameTagIsNoOp(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	category, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "tech"})
	svc := newCatalogService(products, categories, "mytag-21")

	product, err := svc.AddProduct(context.Background(), "https://www.amazon.it/dp/B0ABC12345", category.ID, 1)
	if err != nil {
		t.Fatalf("добавление товара: %v", err)
	}
	if _, err := svc.RenormalizeProduct(context.Background(), product.ID); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(products.relinked) != 0 {
		t.Fatalf("неизменный тег не должен писать в хранилище: %v", products.relinked)
	}
}

func TestRenormalizeAllCountsUpdated(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	category, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "tech"})
	settings := &fixedSettingsRepo{settings: domain.Settings{AffiliateTag: "old-20"}}
	svc := NewService(products, categories, settings)

	for _, url := range []string{"https://www.amazon.it/dp/B0ABC12345", "https://www.amazon.it/dp/B0XYZ98765"} {
		if _, err := svc.AddProduct(context.Background(), url, category.ID, 1); err != nil {
			t.Fatalf("добавление товара: %v", err)
		}
	}

	settings.settings.AffiliateTag = "new-21"
	updated, err := svc.RenormalizeAll(context.Background())
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if updated != 2 {
		t.Fatalf("ожидались два обновления, получено %d", updated)
	}
	for id, url := range products.relinked {
		if !strings.Contains(url, "tag=new-21") {
			t.Fatalf("товар %d сохранил старый тег: %s", id, url)
		}
	}
}

func TestCreateCategoryEmptyName(t *testing.T) {
	svc := newCatalogService(newFakeProductRepo(), newFakeCategoryRepo(), "t")
	_, err := svc.CreateCategory(context.Background(), "   ", nil, 1)
	if !errors.Is(err, ErrCategoryNameEmpty) {
		t.Fatalf("ожидали ErrCategoryNameEmpty, получили %v", err)
	}
}

func TestCreateCategoryNormalizesChannels(t *testing.T) {
	categories := newFakeCategoryRepo()
	svc := newCatalogService(newFakeProductRepo(), categories, "t")
	category, err := svc.CreateCategory(context.Background(), "deals", []string{" @one ", "@one", "", "@two"}, 1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(category.Channels) != 2 || category.Channels[0] != "@one" || category.Channels[1] != "@two" {
		t.Fatalf("каналы не нормализованы: %v", category.Channels)
	}
}

func TestDeleteCategoryRequiresReassign(t *testing.T) {
	products := newFakeProductRepo()
	categories := newFakeCategoryRepo()
	src, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "src"})
	dst, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "dst"})
	categories.counts[src.ID] = 3
	svc := newCatalogService(products, categories, "t")

	if err := svc.DeleteCategory(context.Background(), src.ID, 0); !errors.Is(err, domain.ErrCategoryInUse) {
		t.Fatalf("ожидали ErrCategoryInUse, получили %v", err)
	}
	if err := svc.DeleteCategory(context.Background(), src.ID, src.ID); !errors.Is(err, domain.ErrCategoryInUse) {
		t.Fatalf("переназначение в саму себя должно быть отклонено, получили %v", err)
	}

	if err := svc.DeleteCategory(context.Background(), src.ID, dst.ID); err != nil {
		t.Fatalf("удаление с переназначением: %v", err)
	}
	if len(products.reassigned) != 1 || products.reassigned[0] != [2]int64{src.ID, dst.ID} {
		t.Fatalf("товары не переназначены: %v", products.reassigned)
	}
	if len(categories.deleted) != 1 || categories.deleted[0] != src.ID {
		t.Fatalf("категория не удалена: %v", categories.deleted)
	}
}

func TestDeleteEmptyCategory(t *testing.T) {
	categories := newFakeCategoryRepo()
	category, _ := categories.CreateCategory(context.Background(), domain.Category{Name: "empty"})
	svc := newCatalogService(newFakeProductRepo(), categories, "t")

	if err := svc.DeleteCategory(context.Background(), category.ID, 0); err != nil {
		t.Fatalf("пустая категория удаляется без переназначения: %v", err)
	}
}
