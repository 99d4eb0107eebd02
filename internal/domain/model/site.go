package model

import "time"

// Статусы сайта.
const (
	SiteStatusActive    = "active"
	SiteStatusSuspended = "suspended"
)

// Site — размещённый сайт клиента.
// Хранится в таблице sites.
type Site struct {
	// ID — UUID записи
	ID string
	// OwnerID — ID владельца (users.id)
	OwnerID string
	// Domain — доменное имя (example.com)
	Domain string
	// Plan — тарифный план
	Plan string
	// Status — статус (active, suspended)
	Status string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
