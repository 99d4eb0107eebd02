package model

import "time"

// Статусы проекта.
const (
	ProjectStatusPlanned    = "planned"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
)

// Project — проект (работа над сайтом клиента).
// Хранится в таблице projects.
type Project struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	// SiteID — связанный сайт (может быть nil)
	SiteID    *string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
