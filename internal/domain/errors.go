package domain

import "errors"

// Ошибки конвейера публикации. Локальные ошибки ввода не ретраятся,
// транзиентные — ретраятся с бэкоффом внутри владеющего компонента.
var (
	// ErrInvalidURL — ссылка не является распознаваемой ссылкой на товар Amazon.
	ErrInvalidURL = errors.New("invalid amazon product url")
	// ErrUpstreamFetch — транзиентная ошибка получения страницы товара.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrAIGeneration — генерация текста не удалась, используется шаблон.
	ErrAIGeneration = errors.New("ai generation failed")
	// ErrInvalidState — недопустимый переход состояния воркфлоу.
	ErrInvalidState = errors.New("invalid approval state transition")
	// ErrNoDestination — у категории не настроен ни один канал.
	ErrNoDestination = errors.New("category has no destination channels")
	// ErrDelivery — канал не принял сообщение.
	ErrDelivery = errors.New("channel delivery failed")
	// ErrCategoryInUse — категорию с товарами нельзя удалить без переназначения.
	ErrCategoryInUse = errors.New("category still has products")
	// ErrNotFound — сущность не найдена в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrForbidden — у администратора нет нужной привилегии.
	ErrForbidden = errors.New("admin action forbidden")
)
