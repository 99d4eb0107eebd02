// portal.go — страницы клиента и администратора.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/service"
	uimiddleware "github.com/arturkryukov/hostportal/internal/ui/middleware"
	"github.com/arturkryukov/hostportal/internal/ui/pages"
)

// Сколько строк показывать в таблицах страниц.
const (
	homeListLimit  = 20
	usersListLimit = 100
)

// flashKinds — допустимые сообщения ?flash= и их вид.
var flashKinds = map[string]string{
	"role_changed": "info",
	"onboarded":    "info",
	"partial_sync": "warn",
	"sync_failed":  "warn",
	"error":        "warn",
}

// UserService — пользователи портала.
type UserService interface {
	List(ctx context.Context, limit, offset int) ([]*model.User, int, error)
	Get(ctx context.Context, id string) (*model.User, error)
	ChangeRole(ctx context.Context, actor service.Actor, targetID, role string) (*model.User, error)
}

// OnboardingService — завершение онбординга.
type OnboardingService interface {
	CompleteOnboarding(ctx context.Context, userID string) error
}

// SiteLister — сайты, видимые актору.
type SiteLister interface {
	List(ctx context.Context, actor service.Actor, limit, offset int) ([]*model.Site, int, error)
}

// TicketLister — заявки, видимые актору.
type TicketLister interface {
	List(ctx context.Context, actor service.Actor, status *string, limit, offset int) ([]*model.Ticket, int, error)
}

// DashboardService — сводные счётчики.
type DashboardService interface {
	Summary(ctx context.Context, actor service.Actor) (*model.Summary, error)
}

// DependencyHealth — состояние зависимостей (service.DephealthService).
type DependencyHealth interface {
	Health() map[string]bool
}

// PortalServices — зависимости PortalHandler.
type PortalServices struct {
	Users      UserService
	Onboarding OnboardingService
	Sites      SiteLister
	Tickets    TicketLister
	Dashboard  DashboardService
	// Deps — nil, если мониторинг зависимостей выключен.
	Deps DependencyHealth
}

// PortalHandler — страницы портала за guard.
type PortalHandler struct {
	svc    PortalServices
	logger *slog.Logger
}

// NewPortalHandler создаёт PortalHandler.
func NewPortalHandler(svc PortalServices, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "ui_portal")),
	}
}

// HandleHome — GET /portal/: дашборд клиента.
func (h *PortalHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, nav := h.actor(r)

	data := pages.HomeData{Nav: nav, Flash: flashFromQuery(r), Onboarded: true}

	u, err := h.svc.Users.Get(ctx, actor.ID)
	switch {
	case err == nil:
		data.Onboarded = u.Onboarded
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		// вебхук регистрации ещё не обработан
		data.Onboarded = false
	default:
		h.fail(w, "Ошибка загрузки пользователя", err)
		return
	}

	sum, err := h.svc.Dashboard.Summary(ctx, actor)
	if err != nil {
		h.fail(w, "Ошибка загрузки сводки", err)
		return
	}
	data.Summary = summaryView(sum, nav.Admin)

	sites, _, err := h.svc.Sites.List(ctx, actor, homeListLimit, 0)
	if err != nil {
		h.fail(w, "Ошибка загрузки сайтов", err)
		return
	}
	for _, s := range sites {
		data.Sites = append(data.Sites, pages.SiteRow{Domain: s.Domain, Plan: s.Plan, Status: s.Status})
	}

	tickets, _, err := h.svc.Tickets.List(ctx, actor, nil, homeListLimit, 0)
	if err != nil {
		h.fail(w, "Ошибка загрузки заявок", err)
		return
	}
	for _, t := range tickets {
		data.Tickets = append(data.Tickets, pages.TicketRow{Subject: t.Subject, Status: t.Status, CreatedAt: t.CreatedAt})
	}

	renderPage(w, r, h.logger, pages.Home(data))
}

// HandleOnboarding — POST /portal/onboarding.
func (h *PortalHandler) HandleOnboarding(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)
	flash := "onboarded"
	if err := h.svc.Onboarding.CompleteOnboarding(r.Context(), actor.ID); err != nil {
		h.logger.Warn("Онбординг не завершён",
			slog.String("user_id", actor.ID),
			slog.String("error", err.Error()),
		)
		flash = "error"
	}
	http.Redirect(w, r, "/portal/?flash="+flash, http.StatusSeeOther)
}

// HandleAdmin — GET /portal/admin: дашборд администратора.
func (h *PortalHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	actor, nav := h.actor(r)

	sum, err := h.svc.Dashboard.Summary(r.Context(), actor)
	if err != nil {
		h.fail(w, "Ошибка загрузки сводки", err)
		return
	}

	data := pages.AdminData{Nav: nav, Summary: summaryView(sum, nav.Admin)}
	if h.svc.Deps != nil {
		for name, ok := range h.svc.Deps.Health() {
			data.Deps = append(data.Deps, pages.DepRow{Name: name, Healthy: ok})
		}
		sort.Slice(data.Deps, func(i, j int) bool { return data.Deps[i].Name < data.Deps[j].Name })
	}

	renderPage(w, r, h.logger, pages.AdminHome(data))
}

// HandleUsers — GET /portal/admin/users.
func (h *PortalHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	_, nav := h.actor(r)

	users, total, err := h.svc.Users.List(r.Context(), usersListLimit, 0)
	if err != nil {
		h.fail(w, "Ошибка загрузки пользователей", err)
		return
	}

	data := pages.UsersData{
		Nav:   nav,
		Flash: flashFromQuery(r),
		Total: total,
		Roles: []string{string(rbac.RoleUser), string(rbac.RoleAdmin)},
	}
	for _, u := range users {
		data.Users = append(data.Users, pages.UserRow{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role})
	}

	renderPage(w, r, h.logger, pages.AdminUsers(data))
}

// HandleChangeRole — POST /portal/admin/users/{id}/role.
// Сбой синхронизации показывается с пользователем и состоянием каждой стороны,
// чтобы было видно, что сверять вручную.
func (h *PortalHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := h.actor(r)
	target := chi.URLParam(r, "id")

	_, err := h.svc.Users.ChangeRole(r.Context(), actor, target, r.FormValue("role"))

	q := url.Values{}
	var syncErr *service.SyncError
	switch {
	case err == nil:
		q.Set("flash", "role_changed")
	case errors.As(err, &syncErr):
		q.Set("flash", "sync_failed")
		if errors.Is(err, service.ErrPartialSync) {
			q.Set("flash", "partial_sync")
		}
		q.Set("target", target)
		q.Set("db", string(syncErr.Relational))
		q.Set("idp", string(syncErr.Identity))
	default:
		q.Set("flash", "error")
	}
	if err != nil {
		h.logger.Warn("Смена роли из UI не выполнена полностью",
			slog.String("target_id", target),
			slog.String("error", err.Error()),
		)
	}

	http.Redirect(w, r, "/portal/admin/users?"+q.Encode(), http.StatusSeeOther)
}

// actor строит актора из сессии и роли, разрешённой guard.
func (h *PortalHandler) actor(r *http.Request) (service.Actor, pages.Nav) {
	role := uimiddleware.RoleFromContext(r.Context())
	nav := pages.Nav{Admin: rbac.AtLeast(role, rbac.RoleAdmin)}
	actor := service.Actor{Role: role}
	if s := uimiddleware.SessionFromContext(r.Context()); s != nil {
		actor.ID = s.Subject
		nav.Username = s.Username
		if nav.Username == "" {
			nav.Username = s.Email
		}
	}
	return actor, nav
}

func (h *PortalHandler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.String("error", err.Error()))
	http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
}

// summaryView показывает число пользователей только администратору.
func summaryView(s *model.Summary, admin bool) pages.Summary {
	v := pages.Summary{Sites: s.Sites, Projects: s.Projects, OpenTickets: s.OpenTickets}
	if admin {
		users := s.Users
		v.Users = &users
	}
	return v
}

func flashFromQuery(r *http.Request) *pages.Flash {
	q := r.URL.Query()
	key := q.Get("flash")
	kind, ok := flashKinds[key]
	if !ok {
		return nil
	}
	f := &pages.Flash{Kind: kind, Key: "flash." + key}

	if key == "partial_sync" || key == "sync_failed" {
		target, db, idp := q.Get("target"), q.Get("db"), q.Get("idp")
		if target != "" && writeStatuses[db] && writeStatuses[idp] {
			f.Key += ".detail"
			f.Args = []any{target, db, idp}
		}
	}
	return f
}

// writeStatuses — допустимые состояния сторон в ?db= и ?idp=.
var writeStatuses = map[string]bool{
	string(service.WriteOK):      true,
	string(service.WriteFailed):  true,
	string(service.WriteSkipped): true,
}

// renderPage рендерит страницу как text/html.
func renderPage(w http.ResponseWriter, r *http.Request, logger *slog.Logger, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		logger.Error("Ошибка рендеринга страницы",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга страницы", http.StatusInternalServerError)
	}
}
