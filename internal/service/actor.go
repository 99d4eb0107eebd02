package service

import "github.com/arturkryukov/hostportal/internal/domain/rbac"

// Actor — инициатор операции (из JWT или UI-сессии).
type Actor struct {
	ID   string
	Role rbac.Role
}

// IsAdmin сообщает, видит ли актор ресурсы всех владельцев.
func (a Actor) IsAdmin() bool {
	return rbac.AtLeast(a.Role, rbac.RoleAdmin)
}

// ownerScope возвращает фильтр по владельцу: nil для администратора.
func (a Actor) ownerScope() *string {
	if a.IsAdmin() {
		return nil
	}
	id := a.ID
	return &id
}

// canAccess проверяет, может ли актор видеть ресурс владельца ownerID.
func (a Actor) canAccess(ownerID string) bool {
	return a.IsAdmin() || a.ID == ownerID
}
