package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-affiliate-bot/internal/domain"
)

type stubStore struct {
	mu       sync.Mutex
	product  domain.Product
	category domain.Category
	settings domain.Settings
}

func (s *stubStore) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	return p, nil
}

func (s *stubStore) GetProduct(_ context.Context, _ int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.product, nil
}

func (s *stubStore) GetProductByASIN(_ context.Context, _ string) (domain.Product, error) {
	return domain.Product{}, domain.ErrNotFound
}

func (s *stubStore) ListTracked(_ context.Context) ([]domain.Product, error) { return nil, nil }
func (s *stubStore) ListByCategory(_ context.Context, _ int64) ([]domain.Product, error) {
	return nil, nil
}
func (s *stubStore) UpdatePrice(_ context.Context, _ int64, _ float64, _ string, _ time.Time) error {
	return nil
}
func (s *stubStore) RecordFetchFailure(_ context.Context, _ int64, _ string, _ time.Time) error {
	return nil
}
func (s *stubStore) UpdateDetails(_ context.Context, _ int64, _, _ string) error   { return nil }
func (s *stubStore) UpdateAffiliateURL(_ context.Context, _ int64, _ string) error { return nil }
func (s *stubStore) SaveDescription(_ context.Context, _ int64, _ string) error    { return nil }
func (s *stubStore) ArchiveProduct(_ context.Context, _ int64) error               { return nil }
func (s *stubStore) DeleteProduct(_ context.Context, _ int64) error                { return nil }
func (s *stubStore) ReassignCategory(_ context.Context, _, _ int64) error          { return nil }

// TransitionState воспроизводит семантику условного UPDATE: переход
// применяется только если текущее состояние совпадает с from.
func (s *stubStore) TransitionState(_ context.Context, _ int64, from, to domain.ApprovalState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.product.State != from {
		return false, nil
	}
	s.product.State = to
	return true, nil
}

func (s *stubStore) GetCategory(_ context.Context, _ int64) (domain.Category, error) {
	return s.category, nil
}
func (s *stubStore) CreateCategory(_ context.Context, c domain.Category) (domain.Category, error) {
	return c, nil
}
func (s *stubStore) ListCategories(_ context.Context) ([]domain.Category, error) { return nil, nil }
func (s *stubStore) SetCategoryChannels(_ context.Context, _ int64, _ []string) error {
	return nil
}
func (s *stubStore) CountCategoryProducts(_ context.Context, _ int64) (int, error) { return 0, nil }
func (s *stubStore) DeleteCategory(_ context.Context, _ int64) error               { return nil }

func (s *stubStore) GetSettings(_ context.Context) (domain.Settings, error) { return s.settings, nil }
func (s *stubStore) UpdateSettings(_ context.Context, _ domain.Settings) error {
	return nil
}

func price(v float64) *float64 { return &v }

func newTestService(store *stubStore) *Service {
	return NewService(store, store, store, zerolog.Nop())
}

func TestSubmitManualMode(t *testing.T) {
	store := &stubStore{
		product:  domain.Product{ID: 1, State: domain.StateProposed},
		settings: domain.Settings{ApprovalMode: domain.ApprovalManual},
	}
	state, err := newTestService(store).Submit(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if state != domain.StatePendingReview {
		t.Fatalf("ожидали pending_review, получили %s", state)
	}
}

func TestSubmitAutoMode(t *testing.T) {
	store := &stubStore{
		product:  domain.Product{ID: 1, State: domain.StateProposed, Price: price(9.99)},
		category: domain.Category{ID: 1, Channels: []string{"@deals"}},
		settings: domain.Settings{ApprovalMode: domain.ApprovalAuto},
	}
	state, err := newTestService(store).Submit(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if state != domain.StateApproved {
		t.Fatalf("ожидали approved, получили %s", state)
	}
}

func TestSubmitAutoModeGuardrails(t *testing.T) {
	// Без цены автоодобрение не проходит, товар уходит на ревью.
	store := &stubStore{
		product:  domain.Product{ID: 1, State: domain.StateProposed},
		category: domain.Category{ID: 1, Channels: []string{"@deals"}},
		settings: domain.Settings{ApprovalMode: domain.ApprovalAuto},
	}
	state, err := newTestService(store).Submit(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if state != domain.StatePendingReview {
		t.Fatalf("ожидали pending_review, получили %s", state)
	}

	// Без каналов — тоже.
	store = &stubStore{
		product:  domain.Product{ID: 1, State: domain.StateProposed, Price: price(9.99)},
		category: domain.Category{ID: 1},
		settings: domain.Settings{ApprovalMode: domain.ApprovalAuto},
	}
	state, err = newTestService(store).Submit(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if state != domain.StatePendingReview {
		t.Fatalf("ожидали pending_review, получили %s", state)
	}
}

func TestConcurrentApproveReject(t *testing.T) {
	store := &stubStore{
		product:  domain.Product{ID: 1, State: domain.StatePendingReview},
		settings: domain.Settings{ApprovalMode: domain.ApprovalManual},
	}
	service := newTestService(store)
	admin := domain.Admin{UserID: 10, Role: domain.AdminRoleStandard}
	other := domain.Admin{UserID: 11, Role: domain.AdminRoleStandard}

	var wg sync.WaitGroup
	var approveDecision, rejectDecision Decision
	var approveErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		approveDecision, approveErr = service.Approve(context.Background(), admin, 1)
	}()
	go func() {
		defer wg.Done()
		rejectDecision, rejectErr = service.Reject(context.Background(), other, 1)
	}()
	wg.Wait()

	if approveErr != nil || rejectErr != nil {
		t.Fatalf("проигравший получает no-op, а не ошибку: %v %v", approveErr, rejectErr)
	}
	if approveDecision.Applied == rejectDecision.Applied {
		t.Fatalf("ровно одно действие должно примениться: approve=%v reject=%v", approveDecision.Applied, rejectDecision.Applied)
	}
	if approveDecision.Applied && store.product.State != domain.StateApproved {
		t.Fatalf("итоговое состояние не совпадает с победителем: %s", store.product.State)
	}
	if rejectDecision.Applied && store.product.State != domain.StateRejected {
		t.Fatalf("итоговое состояние не совпадает с победителем: %s", store.product.State)
	}
}

func TestApproveRequiresCapability(t *testing.T) {
	store := &stubStore{product: domain.Product{ID: 1, State: domain.StatePendingReview}}
	service := newTestService(store)
	noRole := domain.Admin{UserID: 5, Role: domain.AdminRole("viewer")}
	if _, err := service.Approve(context.Background(), noRole, 1); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
}

func TestCancelApproved(t *testing.T) {
	store := &stubStore{product: domain.Product{ID: 1, State: domain.StateApproved}}
	service := newTestService(store)
	admin := domain.Admin{UserID: 10, Role: domain.AdminRoleGod}
	decision, err := service.Cancel(context.Background(), admin, 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !decision.Applied || decision.State != domain.StateRejected {
		t.Fatalf("ожидали снятие одобрения в rejected: %+v", decision)
	}
}

func TestCancelAlreadyPublished(t *testing.T) {
	store := &stubStore{product: domain.Product{ID: 1, State: domain.StatePublished}}
	service := newTestService(store)
	admin := domain.Admin{UserID: 10, Role: domain.AdminRoleGod}
	decision, err := service.Cancel(context.Background(), admin, 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if decision.Applied || decision.State != domain.StatePublished {
		t.Fatalf("опубликованный товар нельзя отменить: %+v", decision)
	}
}

func TestReopenRejected(t *testing.T) {
	store := &stubStore{product: domain.Product{ID: 1, State: domain.StateRejected}}
	service := newTestService(store)
	admin := domain.Admin{UserID: 10, Role: domain.AdminRoleGod}
	decision, err := service.Reopen(context.Background(), admin, 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !decision.Applied || decision.State != domain.StateProposed {
		t.Fatalf("ожидали переоткрытие в proposed: %+v", decision)
	}
}
