package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/arturkryukov/hostportal/internal/domain/guard"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/domain/resolution"
	"github.com/arturkryukov/hostportal/internal/identity"
	"github.com/arturkryukov/hostportal/internal/service"
	"github.com/arturkryukov/hostportal/internal/ui/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLoadingPage(refreshURL string, after time.Duration) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "loading:"+refreshURL)
		return err
	})
}

// roleEcho отвечает ролью, которую guard положил в контекст.
var roleEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, string(RoleFromContext(r.Context())))
})

func claimsFor(role string) rbac.ClaimsBundle {
	return rbac.ClaimsBundle{UserID: "u1", RoleClaim: &role}
}

type guardEnv struct {
	guard   *Guard
	tracker *resolution.Tracker
}

func newGuardEnv(t *testing.T, src identity.ClaimsSource, timeout, tick time.Duration) *guardEnv {
	t.Helper()
	tracker := resolution.NewTracker(100, time.Minute)
	svc := service.NewResolutionService(tracker, src, timeout, testLogger())
	policy := guard.NewPolicy("/portal/login", "/portal/", "/portal/admin")
	return &guardEnv{
		guard:   NewGuard(svc, policy, tick, testLoadingPage, testLogger()),
		tracker: tracker,
	}
}

func (e *guardEnv) serve(required rbac.Role, method, target string, sess *auth.SessionData) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if sess != nil {
		req = req.WithContext(WithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	e.guard.Require(required)(roleEcho).ServeHTTP(rec, req)
	return rec
}

func staticSource(claims rbac.ClaimsBundle) identity.ClaimsSource {
	return identity.SourceFunc(func(context.Context, string) (rbac.ClaimsBundle, error) {
		return claims, nil
	})
}

var aliceSession = &auth.SessionData{ID: "sess-1", Subject: "u1", AccessToken: "token"}

func TestGuard_Decisions(t *testing.T) {
	tests := []struct {
		name         string
		claims       string
		session      *auth.SessionData
		required     rbac.Role
		target       string
		wantStatus   int
		wantBody     string
		wantLocation string
	}{
		{
			name:         "аноним на странице пользователя",
			required:     rbac.RoleUser,
			target:       "/portal/sites?page=2",
			wantStatus:   http.StatusFound,
			wantLocation: "/portal/login?return_to=" + url.QueryEscape("/portal/sites?page=2"),
		},
		{
			name:       "аноним на публичной странице",
			required:   rbac.RoleGuest,
			target:     "/portal/welcome",
			wantStatus: http.StatusOK,
			wantBody:   "guest",
		},
		{
			name:       "admin на admin-странице",
			claims:     "admin",
			session:    aliceSession,
			required:   rbac.RoleAdmin,
			target:     "/portal/admin",
			wantStatus: http.StatusOK,
			wantBody:   "admin",
		},
		{
			name:         "user на admin-странице",
			claims:       "user",
			session:      aliceSession,
			required:     rbac.RoleAdmin,
			target:       "/portal/admin/users",
			wantStatus:   http.StatusFound,
			wantLocation: "/portal/",
		},
		{
			name:       "admin на странице пользователя",
			claims:     "admin",
			session:    aliceSession,
			required:   rbac.RoleUser,
			target:     "/portal/",
			wantStatus: http.StatusOK,
			wantBody:   "admin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newGuardEnv(t, staticSource(claimsFor(tt.claims)), time.Second, time.Second)
			rec := env.serve(tt.required, http.MethodGet, tt.target, tt.session)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, хотели %d; тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("тело = %q, хотели %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, хотели %q", got, tt.wantLocation)
			}
			if env.tracker.Len() != 0 {
				t.Errorf("после окончательного решения просмотров: %d, хотели 0", env.tracker.Len())
			}
		})
	}
}

// blockingSource отвечает claims только после закрытия release.
func blockingSource(release <-chan struct{}, claims rbac.ClaimsBundle) identity.ClaimsSource {
	return identity.SourceFunc(func(ctx context.Context, _ string) (rbac.ClaimsBundle, error) {
		select {
		case <-release:
			return claims, nil
		case <-ctx.Done():
			return rbac.ClaimsBundle{}, resolution.ErrIdentitySourceUnavailable
		}
	})
}

// loadingView извлекает view из ссылки заглушки.
func loadingView(t *testing.T, body string) string {
	t.Helper()
	if !strings.HasPrefix(body, "loading:") {
		t.Fatalf("ожидалась заглушка, тело: %q", body)
	}
	u, err := url.Parse(strings.TrimPrefix(body, "loading:"))
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	view := u.Query().Get(ViewParam)
	if view == "" {
		t.Fatalf("в ссылке заглушки нет %s: %s", ViewParam, u)
	}
	return view
}

func TestGuard_LoadingThenAllow(t *testing.T) {
	release := make(chan struct{})
	env := newGuardEnv(t, blockingSource(release, claimsFor("admin")), time.Second, 10*time.Millisecond)

	rec := env.serve(rbac.RoleAdmin, http.MethodGet, "/portal/admin?tab=users", aliceSession)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, хотели 200", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("заглушка не должна кэшироваться")
	}
	view := loadingView(t, rec.Body.String())
	if !strings.Contains(rec.Body.String(), "tab=users") {
		t.Errorf("ссылка заглушки потеряла параметры: %s", rec.Body.String())
	}

	close(release)

	rec = env.serve(rbac.RoleAdmin, http.MethodGet, "/portal/admin?tab=users&view="+view, aliceSession)
	if rec.Code != http.StatusOK || rec.Body.String() != "admin" {
		t.Fatalf("повторная проверка: %d %q, хотели 200 admin", rec.Code, rec.Body.String())
	}
	if _, ok := env.tracker.Get(view); ok {
		t.Error("просмотр должен быть освобождён после решения")
	}
}

func TestGuard_TimeoutRedirectsToSignIn(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	env := newGuardEnv(t, blockingSource(release, claimsFor("admin")), 30*time.Millisecond, 5*time.Millisecond)

	rec := env.serve(rbac.RoleUser, http.MethodGet, "/portal/sites", aliceSession)
	view := loadingView(t, rec.Body.String())

	r, ok := env.tracker.Get(view)
	if !ok {
		t.Fatal("просмотр не найден")
	}
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("таймаут разрешения не сработал")
	}

	rec = env.serve(rbac.RoleUser, http.MethodGet, "/portal/sites?view="+view, aliceSession)
	if rec.Code != http.StatusFound {
		t.Fatalf("статус = %d, хотели 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/portal/login?return_to=") {
		t.Errorf("Location = %q, хотели страницу входа", loc)
	}
	if strings.Contains(rec.Header().Get("Location"), "view") {
		t.Errorf("адрес возврата не должен содержать view: %s", rec.Header().Get("Location"))
	}
}

func TestGuard_ForeignViewStartsNew(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	env := newGuardEnv(t, blockingSource(release, claimsFor("admin")), time.Second, 5*time.Millisecond)

	rec := env.serve(rbac.RoleAdmin, http.MethodGet, "/portal/admin", aliceSession)
	view := loadingView(t, rec.Body.String())

	other := &auth.SessionData{ID: "sess-2", AccessToken: "token-2"}
	rec = env.serve(rbac.RoleAdmin, http.MethodGet, "/portal/admin?view="+view, other)
	if got := loadingView(t, rec.Body.String()); got == view {
		t.Error("чужая сессия не должна получить чужой просмотр")
	}
}

func TestGuard_PostWaitsForDecision(t *testing.T) {
	release := make(chan struct{})
	env := newGuardEnv(t, blockingSource(release, claimsFor("admin")), time.Second, time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()

	rec := env.serve(rbac.RoleAdmin, http.MethodPost, "/portal/admin/users/u2/role", aliceSession)
	if rec.Code != http.StatusOK || rec.Body.String() != "admin" {
		t.Errorf("POST: %d %q, хотели 200 admin без заглушки", rec.Code, rec.Body.String())
	}
}

func TestRoleFromContext_Default(t *testing.T) {
	if got := RoleFromContext(context.Background()); got != rbac.RoleGuest {
		t.Errorf("роль по умолчанию = %q, хотели guest", got)
	}
}
