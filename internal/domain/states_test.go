package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ApprovalState
		to   ApprovalState
		want bool
	}{
		{name: "proposed to pending", from: StateProposed, to: StatePendingReview, want: true},
		{name: "proposed to approved", from: StateProposed, to: StateApproved, want: true},
		{name: "pending to approved", from: StatePendingReview, to: StateApproved, want: true},
		{name: "pending to rejected", from: StatePendingReview, to: StateRejected, want: true},
		{name: "approved to published", from: StateApproved, to: StatePublished, want: true},
		{name: "rejected reopen", from: StateRejected, to: StateProposed, want: true},
		{name: "published is terminal", from: StatePublished, to: StateProposed, want: false},
		{name: "rejected cannot publish", from: StateRejected, to: StatePublished, want: false},
		{name: "pending cannot publish directly", from: StatePendingReview, to: StatePublished, want: false},
		{name: "proposed cannot publish directly", from: StateProposed, to: StatePublished, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPublishedIsTerminal(t *testing.T) {
	if !StatePublished.IsTerminal() {
		t.Fatalf("ожидали, что published терминально")
	}
	if StateRejected.IsTerminal() {
		t.Fatalf("rejected можно переоткрыть, оно не терминально")
	}
}

func TestAdminCapabilities(t *testing.T) {
	god := Admin{Role: AdminRoleGod}
	standard := Admin{Role: AdminRoleStandard}
	if !god.Can(CapManageAdmins) {
		t.Fatalf("god admin должен управлять админами")
	}
	if standard.Can(CapManageAdmins) {
		t.Fatalf("обычный админ не управляет админами")
	}
	if !standard.Can(CapApprove) {
		t.Fatalf("обычный админ должен одобрять товары")
	}
	if standard.Can(CapForceRepublish) {
		t.Fatalf("принудительная публикация — только для god admin")
	}
}
