package routing

import (
	"context"
	"errors"
	"testing"

	"tg-affiliate-bot/internal/domain"
)

type stubCategoryRepo struct {
	categories map[int64]domain.Category
}

func (s *stubCategoryRepo) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	return category, nil
}

func (s *stubCategoryRepo) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	category, ok := s.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrNotFound
	}
	return category, nil
}

func (s *stubCategoryRepo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return nil, nil
}

func (s *stubCategoryRepo) SetCategoryChannels(ctx context.Context, categoryID int64, channels []string) error {
	return nil
}

func (s *stubCategoryRepo) CountCategoryProducts(ctx context.Context, categoryID int64) (int, error) {
	return 0, nil
}

func (s *stubCategoryRepo) DeleteCategory(ctx context.Context, categoryID int64) error {
	return nil
}

func TestRouteFanOut(t *testing.T) {
	repo := &stubCategoryRepo{categories: map[int64]domain.Category{
		7: {ID: 7, Name: "electronics", Channels: []string{"@deals_one", "@deals_two"}},
	}}
	svc := NewService(repo)

	payload := domain.PostPayload{Text: "post"}
	destinations, err := svc.Route(context.Background(), domain.Product{ID: 1, CategoryID: 7}, payload)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(destinations) != 2 {
		t.Fatalf("ожидали 2 назначения, получили %d", len(destinations))
	}
	if destinations[0].ChannelID != "@deals_one" || destinations[1].ChannelID != "@deals_two" {
		t.Fatalf("неверные каналы: %+v", destinations)
	}
	for _, d := range destinations {
		if d.Payload.Text != "post" {
			t.Fatalf("payload не прокинут в назначение: %+v", d)
		}
	}
}

func TestRouteNoChannels(t *testing.T) {
	repo := &stubCategoryRepo{categories: map[int64]domain.Category{
		3: {ID: 3, Name: "empty"},
	}}
	svc := NewService(repo)

	_, err := svc.Route(context.Background(), domain.Product{ID: 2, CategoryID: 3}, domain.PostPayload{})
	if !errors.Is(err, domain.ErrNoDestination) {
		t.Fatalf("ожидали ErrNoDestination, получили %v", err)
	}
}

func TestRouteUnknownCategory(t *testing.T) {
	repo := &stubCategoryRepo{categories: map[int64]domain.Category{}}
	svc := NewService(repo)

	_, err := svc.Route(context.Background(), domain.Product{ID: 3, CategoryID: 99}, domain.PostPayload{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}
