package routing

import (
	"context"
	"fmt"

	"tg-affiliate-bot/internal/domain"
)

// Service резолвит категорию товара в список каналов назначения.
type Service struct {
	categories domain.CategoryRepo
}

// NewService создаёт роутер.
func NewService(categories domain.CategoryRepo) *Service {
	return &Service{categories: categories}
}

// Route возвращает фан-аут пар (канал, пост) для товара. Категория
// без каналов — ошибка конфигурации: товар остаётся в Approved, а
// ошибка поднимается администраторам.
func (s *Service) Route(ctx context.Context, product domain.Product, payload domain.PostPayload) ([]domain.Destination, error) {
	category, err := s.categories.GetCategory(ctx, product.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("получение категории %d: %w", product.CategoryID, err)
	}
	if len(category.Channels) == 0 {
		return nil, fmt.Errorf("%w: категория %q", domain.ErrNoDestination, category.Name)
	}
	destinations := make([]domain.Destination, 0, len(category.Channels))
	for _, channel := range category.Channels {
		destinations = append(destinations, domain.Destination{ChannelID: channel, Payload: payload})
	}
	return destinations, nil
}
