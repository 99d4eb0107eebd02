// Пакет pages — HTML-страницы UI портала (templ-компоненты).
// Разметка — в *.templ, *_templ.go генерирует `templ generate`.
package pages

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/arturkryukov/hostportal/internal/ui/i18n"
)

// StaticPrefix — адрес встроенных ресурсов.
const StaticPrefix = "/portal/static/"

// languages — варианты переключателя языка.
var languages = []string{"en", "ru"}

// Nav — данные шапки страницы.
type Nav struct {
	Username string
	Admin    bool
}

// Flash — сообщение по итогам действия; Key — ключ перевода.
type Flash struct {
	// Kind — info или warn.
	Kind string
	Key  string
	// Args — подстановки для Key.
	Args []any
}

// Summary — счётчики дашборда; Users только для администратора.
type Summary struct {
	Users       *int
	Sites       int
	Projects    int
	OpenTickets int
}

// SiteRow — строка таблицы сайтов.
type SiteRow struct {
	Domain string
	Plan   string
	Status string
}

// TicketRow — строка таблицы заявок.
type TicketRow struct {
	Subject   string
	Status    string
	CreatedAt time.Time
}

// HomeData — данные домашней страницы клиента.
type HomeData struct {
	Nav       Nav
	Flash     *Flash
	Onboarded bool
	Summary   Summary
	Sites     []SiteRow
	Tickets   []TicketRow
}

// DepRow — состояние зависимости.
type DepRow struct {
	Name    string
	Healthy bool
}

// AdminData — данные дашборда администратора.
type AdminData struct {
	Nav     Nav
	Summary Summary
	Deps    []DepRow
}

// UserRow — строка таблицы пользователей.
type UserRow struct {
	ID       string
	Username string
	Email    string
	Role     string
}

// UsersData — данные страницы пользователей.
type UsersData struct {
	Nav   Nav
	Flash *Flash
	Users []UserRow
	Total int
	// Roles — назначаемые роли.
	Roles []string
}

func flashText(ctx context.Context, f *Flash) string {
	if len(f.Args) > 0 {
		return i18n.Tf(ctx, f.Key, f.Args...)
	}
	return i18n.T(ctx, f.Key)
}

// refreshContent — значение meta refresh: секунды и адрес.
func refreshContent(refreshURL string, after time.Duration) string {
	return fmt.Sprintf("%.1f;url=%s", after.Seconds(), templ.URL(refreshURL))
}

func roleAction(userID string) templ.SafeURL {
	return templ.URL("/portal/admin/users/" + url.PathEscape(userID) + "/role")
}

func formatCreated(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}
