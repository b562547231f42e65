package domain

import "time"

// AdminRole описывает уровень доступа администратора.
type AdminRole string

const (
	// AdminRoleGod — владелец бота, задаётся при старте из окружения.
	AdminRoleGod AdminRole = "god"
	// AdminRoleStandard — обычный администратор.
	AdminRoleStandard AdminRole = "standard"
)

// Capability — отдельное разрешённое действие администратора.
type Capability string

const (
	CapManageAdmins    Capability = "manage_admins"
	CapManageCatalog   Capability = "manage_catalog"
	CapApprove         Capability = "approve"
	CapForceRepublish  Capability = "force_republish"
	CapConfigure       Capability = "configure"
)

var roleCapabilities = map[AdminRole]map[Capability]struct{}{
	AdminRoleGod: {
		CapManageAdmins:   {},
		CapManageCatalog:  {},
		CapApprove:        {},
		CapForceRepublish: {},
		CapConfigure:      {},
	},
	AdminRoleStandard: {
		CapManageCatalog: {},
		CapApprove:       {},
	},
}

// Can проверяет наличие привилегии у роли.
func (r AdminRole) Can(cap Capability) bool {
	caps, ok := roleCapabilities[r]
	if !ok {
		return false
	}
	_, ok = caps[cap]
	return ok
}

// Admin — администратор бота.
type Admin struct {
	UserID    int64
	Username  string
	FirstName string
	Role      AdminRole
	AddedBy   int64
	CreatedAt time.Time
}

// Can проверяет привилегию администратора.
func (a Admin) Can(cap Capability) bool {
	return a.Role.Can(cap)
}
