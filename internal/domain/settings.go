package domain

import "time"

// ApprovalMode определяет, как товары проходят воркфлоу согласования.
type ApprovalMode string

const (
	// ApprovalManual — каждый товар ждёт явного решения администратора.
	ApprovalManual ApprovalMode = "manual"
	// ApprovalAuto — товар одобряется автоматически при выполнении гардрейлов.
	ApprovalAuto ApprovalMode = "auto"
)

// Settings — изменяемая администраторами конфигурация, переживающая рестарт.
type Settings struct {
	AffiliateTag     string
	ApprovalMode     ApprovalMode
	ReviewChannelID  string
	AIPrompt         string
	AIPromptEnabled  bool
	ButtonText       string
	CheckInterval    time.Duration
	ProductDelay     time.Duration
	MonitorEnabled   bool
	Language         string
	ReopenOnDrop     bool
	MinDropPercent   int
	UpdatedBy        int64
	UpdatedAt        time.Time
}
