package model

import "time"

// Статусы тикета. closed — терминальный.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Приоритеты тикета.
const (
	TicketPriorityLow    = "low"
	TicketPriorityNormal = "normal"
	TicketPriorityHigh   = "high"
)

// Ticket — обращение в поддержку.
// Хранится в таблице tickets.
type Ticket struct {
	ID        string
	OwnerID   string
	Subject   string
	Body      string
	Priority  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransition проверяет допустимость смены статуса тикета.
// Из closed переходов нет, смена на тот же статус — no-op и допустима.
func CanTransition(from, to string) bool {
	if !IsTicketStatus(to) {
		return false
	}
	if from == TicketStatusClosed {
		return to == TicketStatusClosed
	}
	return true
}

// IsTicketStatus проверяет, что строка — известный статус тикета.
func IsTicketStatus(s string) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}
