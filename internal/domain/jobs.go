package domain

import "time"

// PublishCause описывает источник задачи на публикацию.
type PublishCause string

const (
	// PublishCauseApproval — администратор одобрил товар.
	PublishCauseApproval PublishCause = "approval"
	// PublishCausePriceDrop — монитор цен обнаружил подешевение.
	PublishCausePriceDrop PublishCause = "price_drop"
	// PublishCauseManual — администратор запросил публикацию вручную.
	PublishCauseManual PublishCause = "manual"
)

// PublishJob — задача конвейера публикации.
type PublishJob struct {
	ID          string       `json:"job_id"`
	ProductID   int64        `json:"product_id"`
	Cause       PublishCause `json:"cause"`
	Force       bool         `json:"force,omitempty"`
	RequestedBy int64        `json:"requested_by,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
}
