package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/hostportal/internal/api/middleware"
	"github.com/arturkryukov/hostportal/internal/api/openapi"
	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/service"
)

const (
	testSecret  = "whsec-test"
	siteID      = "0b6f3c1e-2d4a-4f5b-8c9d-1e2f3a4b5c6d"
	otherSiteID = "7d1e2f3a-4b5c-4d6e-9f0a-1b2c3d4e5f60"
)

var testNow = time.Unix(1_760_000_000, 0)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	userClaims  = &middleware.AuthClaims{Subject: "u1", Email: "alice@example.com", Role: rbac.RoleUser}
	adminClaims = &middleware.AuthClaims{Subject: "a1", Role: rbac.RoleAdmin}
)

// --- fakes сервисного слоя ---

type fakeUserService struct {
	users     map[string]*model.User
	changeErr error
	changed   []string
}

func (f *fakeUserService) List(context.Context, int, int) ([]*model.User, int, error) {
	out := make([]*model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (f *fakeUserService) Get(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserService) ChangeRole(_ context.Context, actor service.Actor, id, role string) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, service.ErrForbidden
	}
	u, ok := f.users[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	f.changed = append(f.changed, id+"="+role)
	u.Role = role
	u.IsAdmin = role == "admin"
	return u, f.changeErr
}

type fakeOnboarding struct {
	events    []service.UserCreatedEvent
	created   bool
	err       error
	onboarded []string
}

func (f *fakeOnboarding) HandleUserCreated(_ context.Context, ev service.UserCreatedEvent) (bool, error) {
	f.events = append(f.events, ev)
	return f.created, f.err
}

func (f *fakeOnboarding) CompleteOnboarding(_ context.Context, userID string) error {
	f.onboarded = append(f.onboarded, userID)
	return f.err
}

type fakeSiteService struct {
	sites map[string]*model.Site
}

func (f *fakeSiteService) List(_ context.Context, actor service.Actor, _, _ int) ([]*model.Site, int, error) {
	var out []*model.Site
	for _, s := range f.sites {
		if actor.IsAdmin() || s.OwnerID == actor.ID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (f *fakeSiteService) Get(_ context.Context, actor service.Actor, id string) (*model.Site, error) {
	s, ok := f.sites[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	if !actor.IsAdmin() && s.OwnerID != actor.ID {
		return nil, service.ErrForbidden
	}
	return s, nil
}

func (f *fakeSiteService) Create(_ context.Context, in service.CreateSiteInput) (*model.Site, error) {
	for _, s := range f.sites {
		if s.Domain == in.Domain {
			return nil, service.ErrConflict
		}
	}
	s := &model.Site{ID: otherSiteID, OwnerID: in.OwnerID, Domain: in.Domain, Plan: in.Plan, Status: model.SiteStatusActive}
	f.sites[s.ID] = s
	return s, nil
}

func (f *fakeSiteService) SetStatus(_ context.Context, id, status string) (*model.Site, error) {
	s, ok := f.sites[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	s.Status = status
	return s, nil
}

func (f *fakeSiteService) Delete(_ context.Context, id string) error {
	if _, ok := f.sites[id]; !ok {
		return service.ErrNotFound
	}
	delete(f.sites, id)
	return nil
}

type fakeProjectService struct{}

func (fakeProjectService) List(context.Context, service.Actor, int, int) ([]*model.Project, int, error) {
	return nil, 0, nil
}

func (fakeProjectService) Get(context.Context, service.Actor, string) (*model.Project, error) {
	return nil, service.ErrNotFound
}

func (fakeProjectService) Create(_ context.Context, in service.CreateProjectInput) (*model.Project, error) {
	return &model.Project{ID: siteID, OwnerID: in.OwnerID, Name: in.Name, Status: model.ProjectStatusPlanned}, nil
}

func (fakeProjectService) SetStatus(context.Context, string, string) (*model.Project, error) {
	return nil, service.ErrNotFound
}

type fakeTicketService struct {
	ticket     *model.Ticket
	lastStatus *string
}

func (f *fakeTicketService) List(_ context.Context, _ service.Actor, status *string, _, _ int) ([]*model.Ticket, int, error) {
	f.lastStatus = status
	return []*model.Ticket{f.ticket}, 1, nil
}

func (f *fakeTicketService) Get(_ context.Context, actor service.Actor, id string) (*model.Ticket, error) {
	if id != f.ticket.ID {
		return nil, service.ErrNotFound
	}
	if !actor.IsAdmin() && actor.ID != f.ticket.OwnerID {
		return nil, service.ErrForbidden
	}
	return f.ticket, nil
}

func (f *fakeTicketService) Create(_ context.Context, actor service.Actor, in service.CreateTicketInput) (*model.Ticket, error) {
	return &model.Ticket{ID: siteID, OwnerID: actor.ID, Subject: in.Subject, Body: in.Body,
		Priority: model.TicketPriorityNormal, Status: model.TicketStatusOpen}, nil
}

func (f *fakeTicketService) Transition(_ context.Context, id, to string) (*model.Ticket, error) {
	if id != f.ticket.ID {
		return nil, service.ErrNotFound
	}
	if !model.CanTransition(f.ticket.Status, to) {
		return nil, service.ErrInvalidTransition
	}
	f.ticket.Status = to
	return f.ticket, nil
}

type fakeDashboard struct{}

func (fakeDashboard) Summary(_ context.Context, actor service.Actor) (*model.Summary, error) {
	s := &model.Summary{Sites: 2, Projects: 1, OpenTickets: 3}
	if actor.IsAdmin() {
		s.Users = 10
	}
	return s, nil
}

type fakeIDP struct {
	drift    []service.RoleDrift
	driftErr error
}

func (f *fakeIDP) GetStatus(context.Context) *service.IDPStatus {
	count := 4
	return &service.IDPStatus{Connected: true, Realm: "hostportal", KeycloakURL: "https://kc.test", UsersCount: &count}
}

func (f *fakeIDP) FindDrift(context.Context, int, int) ([]service.RoleDrift, error) {
	return f.drift, f.driftErr
}

// --- тестовое окружение ---

type testEnv struct {
	router     http.Handler
	users      *fakeUserService
	onboarding *fakeOnboarding
	sites      *fakeSiteService
	tickets    *fakeTicketService
	idp        *fakeIDP
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users: &fakeUserService{users: map[string]*model.User{
			"u1": {ID: "u1", Email: "alice@example.com", Role: "user"},
		}},
		onboarding: &fakeOnboarding{created: true},
		sites: &fakeSiteService{sites: map[string]*model.Site{
			siteID: {ID: siteID, OwnerID: "u1", Domain: "alice.example", Plan: "basic", Status: model.SiteStatusActive},
		}},
		tickets: &fakeTicketService{ticket: &model.Ticket{
			ID: siteID, OwnerID: "u1", Subject: "s", Body: "b", Priority: "normal", Status: model.TicketStatusOpen,
		}},
		idp: &fakeIDP{},
	}

	h := NewAPIHandler(NewHealthHandler(nil, nil), Services{
		Users:      env.users,
		Onboarding: env.onboarding,
		Sites:      env.sites,
		Projects:   fakeProjectService{},
		Tickets:    env.tickets,
		Dashboard:  fakeDashboard{},
		IDP:        env.idp,
	}, WebhookConfig{
		Secret:    testSecret,
		Tolerance: 5 * time.Minute,
		Now:       func() time.Time { return testNow },
	}, testLogger())

	env.router = openapi.HandlerWithOptions(h, openapi.ChiServerOptions{
		BaseRouter:       chi.NewRouter(),
		ErrorHandlerFunc: ParamErrorHandler,
	})
	return env
}

// do выполняет запрос от имени claims (nil — без аутентификации).
func (e *testEnv) do(claims *middleware.AuthClaims, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
