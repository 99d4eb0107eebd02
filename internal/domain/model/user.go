// Пакет model — доменные модели портала.
package model

import "time"

// User — учётная запись клиента портала.
// Хранится в таблице users, ключ — идентификатор пользователя в IdP (sub).
// Role и IsAdmin — зеркало атрибутов IdP, записываемое Sync Writer.
type User struct {
	// ID — Keycloak user ID (sub)
	ID string
	// Email — адрес электронной почты
	Email string
	// Username — имя пользователя
	Username string
	// Role — назначенная роль (user, admin)
	Role string
	// IsAdmin — флаг администратора
	IsAdmin bool
	// Onboarded — пройден ли онбординг
	Onboarded bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Summary — агрегированные счётчики для дашборда.
type Summary struct {
	Users       int
	Sites       int
	Projects    int
	OpenTickets int
}
