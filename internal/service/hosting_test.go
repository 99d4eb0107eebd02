package service

import (
	"context"
	"errors"
	"testing"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/validate"
)

var (
	alice = Actor{ID: "alice", Role: rbac.RoleUser}
	bob   = Actor{ID: "bob", Role: rbac.RoleUser}
	admin = Actor{ID: "root", Role: rbac.RoleAdmin}
)

func TestSiteService_CreateAndScope(t *testing.T) {
	svc := NewSiteService(&fakeSites{byID: map[string]*model.Site{}}, validate.New(), testLogger())
	ctx := context.Background()

	site, err := svc.Create(ctx, CreateSiteInput{OwnerID: "alice", Domain: " Shop.Example.ORG ", Plan: "basic"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if site.Domain != "shop.example.org" || site.Status != model.SiteStatusActive {
		t.Errorf("неожиданный сайт: %+v", site)
	}

	if _, err := svc.Create(ctx, CreateSiteInput{OwnerID: "bob", Domain: "shop.example.org", Plan: "basic"}); !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат домена: ошибка = %v, хотели ErrConflict", err)
	}
	if _, err := svc.Create(ctx, CreateSiteInput{OwnerID: "bob", Domain: "x.example", Plan: "gold"}); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестный тариф: ошибка = %v, хотели ErrValidation", err)
	}

	if _, err := svc.Get(ctx, alice, site.ID); err != nil {
		t.Errorf("владелец: %v", err)
	}
	if _, err := svc.Get(ctx, admin, site.ID); err != nil {
		t.Errorf("администратор: %v", err)
	}
	if _, err := svc.Get(ctx, bob, site.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("чужой сайт: ошибка = %v, хотели ErrForbidden", err)
	}

	_, total, _ := svc.List(ctx, bob, 10, 0)
	if total != 0 {
		t.Errorf("bob видит %d сайтов", total)
	}
	_, total, _ = svc.List(ctx, admin, 10, 0)
	if total != 1 {
		t.Errorf("администратор видит %d сайтов, хотели 1", total)
	}
}

func TestSiteService_SetStatusAndDelete(t *testing.T) {
	sites := &fakeSites{byID: map[string]*model.Site{
		"s1": {ID: "s1", OwnerID: "alice", Domain: "a.example", Status: model.SiteStatusActive},
	}}
	svc := NewSiteService(sites, validate.New(), testLogger())
	ctx := context.Background()

	if _, err := svc.SetStatus(ctx, "s1", "deleted"); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, хотели ErrValidation", err)
	}
	s, err := svc.SetStatus(ctx, "s1", model.SiteStatusSuspended)
	if err != nil || s.Status != model.SiteStatusSuspended {
		t.Errorf("SetStatus: %+v, %v", s, err)
	}
	if err := svc.Delete(ctx, "s1"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete: ошибка = %v, хотели ErrNotFound", err)
	}
}

func TestProjectService(t *testing.T) {
	svc := NewProjectService(&fakeProjects{byID: map[string]*model.Project{}}, validate.New(), testLogger())
	ctx := context.Background()

	badSite := "not-a-uuid"
	if _, err := svc.Create(ctx, CreateProjectInput{OwnerID: "alice", Name: "SEO", SiteID: &badSite}); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, хотели ErrValidation", err)
	}

	p, err := svc.Create(ctx, CreateProjectInput{OwnerID: "alice", Name: "SEO"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != model.ProjectStatusPlanned {
		t.Errorf("Status = %q, хотели planned", p.Status)
	}
	if _, err := svc.Get(ctx, bob, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("ошибка = %v, хотели ErrForbidden", err)
	}
	if _, err := svc.SetStatus(ctx, p.ID, "archived"); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, хотели ErrValidation", err)
	}
	if p, err = svc.SetStatus(ctx, p.ID, model.ProjectStatusInProgress); err != nil || p.Status != model.ProjectStatusInProgress {
		t.Errorf("SetStatus: %+v, %v", p, err)
	}
}

func TestTicketService_CreateDefaults(t *testing.T) {
	repo := &fakeTickets{byID: map[string]*model.Ticket{}}
	svc := NewTicketService(repo, inMemoryTx(repo), validate.New(), testLogger())

	tk, err := svc.Create(context.Background(), alice, CreateTicketInput{Subject: "502", Body: "сайт недоступен"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.OwnerID != "alice" || tk.Priority != model.TicketPriorityNormal || tk.Status != model.TicketStatusOpen {
		t.Errorf("неожиданное обращение: %+v", tk)
	}

	if _, err := svc.Create(context.Background(), alice, CreateTicketInput{Subject: "x", Body: "y", Priority: "urgent"}); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, хотели ErrValidation", err)
	}
}

func TestTicketService_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{name: "open -> in_progress", from: "open", to: "in_progress"},
		{name: "resolved -> open", from: "resolved", to: "open"},
		{name: "in_progress -> closed", from: "in_progress", to: "closed"},
		{name: "closed -> closed", from: "closed", to: "closed"},
		{name: "closed -> open", from: "closed", to: "open", wantErr: ErrInvalidTransition},
		{name: "неизвестный статус", from: "open", to: "escalated", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeTickets{byID: map[string]*model.Ticket{
				"t1": {ID: "t1", OwnerID: "alice", Status: tt.from},
			}}
			svc := NewTicketService(repo, inMemoryTx(repo), validate.New(), testLogger())

			got, err := svc.Transition(context.Background(), "t1", tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, хотели %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.Status != tt.to {
				t.Errorf("Status = %q, хотели %q", got.Status, tt.to)
			}
			if tt.wantErr != nil && repo.byID["t1"].Status != tt.from {
				t.Errorf("статус изменён при ошибке: %q", repo.byID["t1"].Status)
			}
		})
	}
}

func TestTicketService_TransitionNotFound(t *testing.T) {
	repo := &fakeTickets{byID: map[string]*model.Ticket{}}
	svc := NewTicketService(repo, inMemoryTx(repo), validate.New(), testLogger())

	if _, err := svc.Transition(context.Background(), "ghost", "closed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, хотели ErrNotFound", err)
	}
}

func TestTicketService_ListScopeAndFilter(t *testing.T) {
	repo := &fakeTickets{byID: map[string]*model.Ticket{
		"t1": {ID: "t1", OwnerID: "alice", Status: "open"},
		"t2": {ID: "t2", OwnerID: "alice", Status: "closed"},
		"t3": {ID: "t3", OwnerID: "bob", Status: "open"},
	}}
	svc := NewTicketService(repo, inMemoryTx(repo), validate.New(), testLogger())
	ctx := context.Background()
	open := "open"

	if _, total, _ := svc.List(ctx, alice, nil, 10, 0); total != 2 {
		t.Errorf("alice: total = %d, хотели 2", total)
	}
	if _, total, _ := svc.List(ctx, admin, &open, 10, 0); total != 2 {
		t.Errorf("admin open: total = %d, хотели 2", total)
	}
	bad := "lost"
	if _, _, err := svc.List(ctx, admin, &bad, 10, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, хотели ErrValidation", err)
	}
}

func TestDashboardSummary(t *testing.T) {
	users := newFakeUsers(&model.User{ID: "alice"}, &model.User{ID: "bob"})
	sites := &fakeSites{byID: map[string]*model.Site{
		"s1": {ID: "s1", OwnerID: "alice"}, "s2": {ID: "s2", OwnerID: "bob"},
	}}
	projects := &fakeProjects{byID: map[string]*model.Project{"p1": {ID: "p1", OwnerID: "alice"}}}
	tickets := &fakeTickets{byID: map[string]*model.Ticket{
		"t1": {ID: "t1", OwnerID: "alice", Status: "open"},
		"t2": {ID: "t2", OwnerID: "bob", Status: "open"},
		"t3": {ID: "t3", OwnerID: "bob", Status: "closed"},
	}}
	svc := NewDashboardService(users, sites, projects, tickets)

	got, err := svc.Summary(context.Background(), admin)
	if err != nil {
		t.Fatalf("Summary(admin): %v", err)
	}
	want := model.Summary{Users: 2, Sites: 2, Projects: 1, OpenTickets: 2}
	if *got != want {
		t.Errorf("Summary(admin) = %+v, хотели %+v", *got, want)
	}

	got, err = svc.Summary(context.Background(), bob)
	if err != nil {
		t.Fatalf("Summary(bob): %v", err)
	}
	want = model.Summary{Users: 0, Sites: 1, Projects: 0, OpenTickets: 1}
	if *got != want {
		t.Errorf("Summary(bob) = %+v, хотели %+v", *got, want)
	}
}

func TestUserService_ChangeRole(t *testing.T) {
	users := newFakeUsers(&model.User{ID: "u1", Role: "user"})
	idp := newFakeIdentity()
	v := validate.New()
	svc := NewUserService(users, NewRoleSyncWriter(users, idp, v, testLogger()), testLogger())
	ctx := context.Background()

	if _, err := svc.ChangeRole(ctx, alice, "u1", "admin"); !errors.Is(err, ErrForbidden) {
		t.Errorf("не администратор: ошибка = %v, хотели ErrForbidden", err)
	}

	u, err := svc.ChangeRole(ctx, admin, "u1", "admin")
	if err != nil || u.Role != "admin" {
		t.Fatalf("ChangeRole: %+v, %v", u, err)
	}

	idp.err = errors.New("keycloak: 500")
	u, err = svc.ChangeRole(ctx, admin, "u1", "user")
	if !errors.Is(err, ErrPartialSync) {
		t.Fatalf("ошибка = %v, хотели ErrPartialSync", err)
	}
	if u == nil || u.Role != "user" {
		t.Errorf("при частичной записи возвращается состояние БД, получено %+v", u)
	}

	if _, err := svc.ChangeRole(ctx, admin, "ghost", "user"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, хотели ErrNotFound", err)
	}
}
