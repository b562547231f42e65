package domain

// ApprovalState — состояние товара в конвейере публикации.
type ApprovalState string

const (
	// StateProposed — товар создан и ждёт решения воркфлоу.
	StateProposed ApprovalState = "proposed"
	// StatePendingReview — товар ждёт явного решения администратора.
	StatePendingReview ApprovalState = "pending_review"
	// StateApproved — товар допущен к публикации.
	StateApproved ApprovalState = "approved"
	// StateRejected — товар отклонён. Терминально, пока админ не вернёт в Proposed.
	StateRejected ApprovalState = "rejected"
	// StatePublished — товар опубликован. Терминально.
	StatePublished ApprovalState = "published"
)

// transitions — явная таблица допустимых переходов состояний.
var transitions = map[ApprovalState][]ApprovalState{
	StateProposed:      {StatePendingReview, StateApproved, StateRejected},
	StatePendingReview: {StateApproved, StateRejected},
	StateApproved:      {StatePublished, StateRejected},
	StateRejected:      {StateProposed},
	StatePublished:     {},
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to ApprovalState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли состояние конечным для воркфлоу.
func (s ApprovalState) IsTerminal() bool {
	return s == StatePublished
}

// Valid проверяет, что значение входит в перечисление.
func (s ApprovalState) Valid() bool {
	_, ok := transitions[s]
	return ok
}
