package approval

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/domain"
)

// Decision — результат действия администратора над товаром.
// Проигравшая сторона гонки получает Applied=false, а не ошибку.
type Decision struct {
	Applied bool
	State   domain.ApprovalState
}

// Service реализует воркфлоу согласования товаров.
type Service struct {
	products   domain.ProductRepo
	categories domain.CategoryRepo
	settings   domain.SettingsRepo
	log        zerolog.Logger
}

// NewService создаёт сервис согласования.
func NewService(products domain.ProductRepo, categories domain.CategoryRepo, settings domain.SettingsRepo, log zerolog.Logger) *Service {
	return &Service{products: products, categories: categories, settings: settings, log: log}
}

// Submit проводит товар из Proposed дальше по воркфлоу: в ручном
// режиме — в PendingReview, в автоматическом — сразу в Approved при
// выполнении гардрейлов. Возвращает итоговое состояние товара.
func (s *Service) Submit(ctx context.Context, productID int64) (domain.ApprovalState, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("получение товара: %w", err)
	}
	if product.State != domain.StateProposed {
		return product.State, nil
	}

	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("получение настроек: %w", err)
	}

	if settings.ApprovalMode == domain.ApprovalAuto && s.passesGuardrails(ctx, product) {
		ok, err := s.products.TransitionState(ctx, productID, domain.StateProposed, domain.StateApproved)
		if err != nil {
			return "", fmt.Errorf("автоодобрение: %w", err)
		}
		if ok {
			return domain.StateApproved, nil
		}
		// Состояние успел поменять кто-то другой.
		refreshed, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return "", fmt.Errorf("получение товара: %w", err)
		}
		return refreshed.State, nil
	}

	ok, err := s.products.TransitionState(ctx, productID, domain.StateProposed, domain.StatePendingReview)
	if err != nil {
		return "", fmt.Errorf("постановка на ревью: %w", err)
	}
	if !ok {
		refreshed, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return "", fmt.Errorf("получение товара: %w", err)
		}
		return refreshed.State, nil
	}
	return domain.StatePendingReview, nil
}

// passesGuardrails проверяет условия автоодобрения: цена получена и
// положительна, у категории есть хотя бы один канал.
func (s *Service) passesGuardrails(ctx context.Context, product domain.Product) bool {
	if !product.HasPrice() {
		s.log.Debug().Int64("product", product.ID).Msg("approval: автоодобрение отложено, нет цены")
		return false
	}
	category, err := s.categories.GetCategory(ctx, product.CategoryID)
	if err != nil {
		s.log.Warn().Err(err).Int64("product", product.ID).Msg("approval: категория недоступна")
		return false
	}
	if len(category.Channels) == 0 {
		s.log.Debug().Int64("product", product.ID).Msg("approval: автоодобрение отложено, нет каналов")
		return false
	}
	return true
}

// Approve одобряет товар. Гонки между администраторами решаются по
// принципу «первый пишущий выигрывает».
func (s *Service) Approve(ctx context.Context, admin domain.Admin, productID int64) (Decision, error) {
	if !admin.Can(domain.CapApprove) {
		return Decision{}, domain.ErrForbidden
	}
	return s.decide(ctx, productID, domain.StateApproved)
}

// Reject отклоняет товар.
func (s *Service) Reject(ctx context.Context, admin domain.Admin, productID int64) (Decision, error) {
	if !admin.Can(domain.CapApprove) {
		return Decision{}, domain.ErrForbidden
	}
	return s.decide(ctx, productID, domain.StateRejected)
}

// Reopen возвращает отклонённый товар в Proposed.
func (s *Service) Reopen(ctx context.Context, admin domain.Admin, productID int64) (Decision, error) {
	if !admin.Can(domain.CapApprove) {
		return Decision{}, domain.ErrForbidden
	}
	ok, err := s.products.TransitionState(ctx, productID, domain.StateRejected, domain.StateProposed)
	if err != nil {
		return Decision{}, fmt.Errorf("переоткрытие: %w", err)
	}
	if !ok {
		return s.currentState(ctx, productID)
	}
	return Decision{Applied: true, State: domain.StateProposed}, nil
}

// Cancel снимает одобрение с ещё не опубликованного товара.
func (s *Service) Cancel(ctx context.Context, admin domain.Admin, productID int64) (Decision, error) {
	if !admin.Can(domain.CapApprove) {
		return Decision{}, domain.ErrForbidden
	}
	ok, err := s.products.TransitionState(ctx, productID, domain.StateApproved, domain.StateRejected)
	if err != nil {
		return Decision{}, fmt.Errorf("отмена одобрения: %w", err)
	}
	if !ok {
		return s.currentState(ctx, productID)
	}
	return Decision{Applied: true, State: domain.StateRejected}, nil
}

func (s *Service) decide(ctx context.Context, productID int64, target domain.ApprovalState) (Decision, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return Decision{}, fmt.Errorf("получение товара: %w", err)
	}
	from := product.State
	// Решение принимается только из состояний, ждущих решения. Если
	// гонку уже выиграло другое действие, второе становится no-op.
	if from != domain.StateProposed && from != domain.StatePendingReview {
		if from == domain.StateApproved || from == domain.StateRejected {
			return Decision{Applied: false, State: from}, nil
		}
		return Decision{}, fmt.Errorf("%w: %s → %s", domain.ErrInvalidState, from, target)
	}
	ok, err := s.products.TransitionState(ctx, productID, from, target)
	if err != nil {
		return Decision{}, fmt.Errorf("переход состояния: %w", err)
	}
	if !ok {
		return s.currentState(ctx, productID)
	}
	return Decision{Applied: true, State: target}, nil
}

func (s *Service) currentState(ctx context.Context, productID int64) (Decision, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return Decision{}, fmt.Errorf("получение товара: %w", err)
	}
	return Decision{Applied: false, State: product.State}, nil
}
