package openapi

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ListParams — пагинация списков.
type ListParams struct {
	Limit  *int `form:"limit,omitempty" json:"limit,omitempty"`
	Offset *int `form:"offset,omitempty" json:"offset,omitempty"`
}

// ListTicketsParams — параметры GET /api/v1/tickets.
type ListTicketsParams struct {
	ListParams
	Status *string `form:"status,omitempty" json:"status,omitempty"`
}

// WebhookParams — заголовки подписи вебхука.
type WebhookParams struct {
	Timestamp string
	Signature string
}

// Me — текущий пользователь по JWT.
type Me struct {
	Id        string               `json:"id"`
	Username  *string              `json:"username,omitempty"`
	Email     *openapi_types.Email `json:"email,omitempty"`
	RoleClaim *string              `json:"role_claim,omitempty"`
	AdminFlag *bool                `json:"admin_flag,omitempty"`
	Role      string               `json:"role"`
}

// User — запись пользователя портала.
type User struct {
	Id        string              `json:"id"`
	Email     openapi_types.Email `json:"email"`
	Username  *string             `json:"username,omitempty"`
	Role      string              `json:"role"`
	IsAdmin   bool                `json:"is_admin"`
	Onboarded bool                `json:"onboarded"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Page — общие поля постраничного ответа.
type Page struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewPage заполняет Page по total/limit/offset.
func NewPage(total, limit, offset int) Page {
	return Page{Total: total, Limit: limit, Offset: offset, HasMore: offset+limit < total}
}

// UserList — ответ GET /api/v1/users.
type UserList struct {
	Items []User `json:"items"`
	Page
}

// RoleChange — тело PUT /api/v1/users/{id}/role.
type RoleChange struct {
	Role string `json:"role"`
}

// StatusChange — тело PUT .../{id}/status.
type StatusChange struct {
	Status string `json:"status"`
}

// Site — сайт клиента.
type Site struct {
	Id        string    `json:"id"`
	OwnerId   string    `json:"owner_id"`
	Domain    string    `json:"domain"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SiteList — ответ GET /api/v1/sites.
type SiteList struct {
	Items []Site `json:"items"`
	Page
}

// Project — проект клиента.
type Project struct {
	Id          string    `json:"id"`
	OwnerId     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	SiteId      *string   `json:"site_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectList — ответ GET /api/v1/projects.
type ProjectList struct {
	Items []Project `json:"items"`
	Page
}

// Ticket — заявка в поддержку.
type Ticket struct {
	Id        string    `json:"id"`
	OwnerId   string    `json:"owner_id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TicketList — ответ GET /api/v1/tickets.
type TicketList struct {
	Items []Ticket `json:"items"`
	Page
}

// Summary — сводка дашборда.
type Summary struct {
	Users       *int `json:"users,omitempty"`
	Sites       int  `json:"sites"`
	Projects    int  `json:"projects"`
	OpenTickets int  `json:"open_tickets"`
}

// IdpStatus — статус подключения к Keycloak.
type IdpStatus struct {
	Connected   bool    `json:"connected"`
	Realm       string  `json:"realm"`
	KeycloakUrl *string `json:"keycloak_url,omitempty"`
	UsersCount  *int    `json:"users_count,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// RoleDrift — расхождение роли между БД и Keycloak.
type RoleDrift struct {
	UserId        string  `json:"user_id"`
	Email         *string `json:"email,omitempty"`
	DbRole        string  `json:"db_role"`
	DbIsAdmin     bool    `json:"db_is_admin"`
	IdentityRole  *string `json:"identity_role,omitempty"`
	IdentityAdmin *string `json:"identity_admin,omitempty"`
	Missing       bool    `json:"missing"`
}

// RoleDriftList — ответ GET /api/v1/idp/drift.
type RoleDriftList struct {
	Items []RoleDrift `json:"items"`
}

// WebhookAck — ответ на доставку вебхука.
type WebhookAck struct {
	Created bool `json:"created"`
}
