// guard.go — защита страниц UI по роли, разрешённой для каждого просмотра.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/hostportal/internal/domain/guard"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/domain/resolution"
)

// ViewParam — query-параметр идентификатора просмотра для повторной проверки.
const ViewParam = "view"

// ReturnToParam — query-параметр страницы входа с адресом возврата.
const ReturnToParam = "return_to"

// anonymousOwner — владелец просмотров без сессии.
const anonymousOwner = "anonymous"

var guardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hp_guard_decisions_total",
		Help: "Решения guard для страниц UI.",
	},
	[]string{"decision"},
)

// Resolver — разрешение роли просмотра (service.ResolutionService).
type Resolver interface {
	Start(ctx context.Context, viewID, owner, accessToken string) *resolution.Resolution
	Lookup(viewID, owner string) (*resolution.Resolution, bool)
	Forget(viewID string)
}

// LoadingPage строит заглушку, которая через after перезапрашивает refreshURL.
type LoadingPage func(refreshURL string, after time.Duration) templ.Component

// Guard пропускает на страницу только при достаточной роли.
// Пока роль не разрешена, GET получает заглушку загрузки с ?view=,
// остальные методы ждут окончательного решения.
type Guard struct {
	resolver Resolver
	policy   guard.Policy
	tick     time.Duration
	loading  LoadingPage
	logger   *slog.Logger
}

// NewGuard создаёт guard. tick — сколько ждать роль до показа заглушки.
func NewGuard(resolver Resolver, policy guard.Policy, tick time.Duration, loading LoadingPage, logger *slog.Logger) *Guard {
	return &Guard{
		resolver: resolver,
		policy:   policy,
		tick:     tick,
		loading:  loading,
		logger:   logger.With(slog.String("component", "ui_guard")),
	}
}

// Require возвращает middleware для страниц с требуемой ролью required.
func (g *Guard) Require(required rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, token := anonymousOwner, ""
			if s := SessionFromContext(r.Context()); s != nil {
				owner, token = s.ID, s.AccessToken
			}

			viewID := r.URL.Query().Get(ViewParam)
			var res *resolution.Resolution
			if viewID != "" {
				res, _ = g.resolver.Lookup(viewID, owner)
			}
			if res == nil {
				viewID = uuid.NewString()
				res = g.resolver.Start(r.Context(), viewID, owner, token)
			}

			wait := g.tick
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				wait = 0
			}
			state := await(r.Context(), res, wait)

			d := guard.Decide(state, required, g.policy)
			guardDecisionsTotal.WithLabelValues(d.Kind.String()).Inc()

			switch d.Kind {
			case guard.KindAllow:
				g.resolver.Forget(viewID)
				next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), d.Role)))

			case guard.KindRedirect:
				g.resolver.Forget(viewID)
				g.logger.Debug("Переход запрещён",
					slog.String("path", r.URL.Path),
					slog.String("role", string(d.Role)),
					slog.String("required", string(required)),
					slog.String("reason", d.Reason().Error()),
				)
				http.Redirect(w, r, g.redirectTarget(d, r.URL), http.StatusFound)

			default:
				if r.Context().Err() != nil {
					return
				}
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				refresh := withQuery(r.URL, ViewParam, viewID)
				if err := g.loading(refresh, g.tick).Render(r.Context(), w); err != nil {
					g.logger.Error("Ошибка рендеринга заглушки", slog.String("error", err.Error()))
				}
			}
		})
	}
}

// redirectTarget добавляет адрес возврата при перенаправлении на вход.
func (g *Guard) redirectTarget(d guard.Decision, current *url.URL) string {
	if d.Target != g.policy.Home[rbac.RoleGuest] {
		return d.Target
	}
	target, err := url.Parse(d.Target)
	if err != nil {
		return d.Target
	}
	back := withoutQuery(current, ViewParam)
	return withQuery(target, ReturnToParam, back)
}

// await ждёт терминального состояния не дольше wait; wait <= 0 — до конца.
func await(ctx context.Context, res *resolution.Resolution, wait time.Duration) resolution.State {
	if wait <= 0 {
		select {
		case <-res.Done():
		case <-ctx.Done():
		}
		return res.State()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-res.Done():
	case <-timer.C:
	case <-ctx.Done():
	}
	return res.State()
}

func withQuery(u *url.URL, key, value string) string {
	c := *u
	q := c.Query()
	q.Set(key, value)
	c.RawQuery = q.Encode()
	return c.RequestURI()
}

func withoutQuery(u *url.URL, key string) string {
	c := *u
	q := c.Query()
	q.Del(key)
	c.RawQuery = q.Encode()
	return c.RequestURI()
}

// WithRole помещает разрешённую роль в контекст.
func WithRole(ctx context.Context, role rbac.Role) context.Context {
	return context.WithValue(ctx, contextKeyRole, role)
}

// RoleFromContext возвращает роль, разрешённую guard; guest по умолчанию.
func RoleFromContext(ctx context.Context) rbac.Role {
	if role, ok := ctx.Value(contextKeyRole).(rbac.Role); ok {
		return role
	}
	return rbac.RoleGuest
}
