package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/keycloak"
	"github.com/arturkryukov/hostportal/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- users ---

type fakeUsers struct {
	mu          sync.Mutex
	byID        map[string]*model.User
	setRoleErr  error
	setRoleCall int
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*model.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) CreateIfAbsent(_ context.Context, u *model.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[u.ID]; ok {
		return false, nil
	}
	cp := *u
	f.byID[u.ID] = &cp
	return true, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.User
	for _, u := range f.byID {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeUsers) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func (f *fakeUsers) SetRole(_ context.Context, id, role string, isAdmin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setRoleCall++
	if f.setRoleErr != nil {
		return f.setRoleErr
	}
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	u.IsAdmin = isAdmin
	return nil
}

func (f *fakeUsers) SetOnboarded(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Onboarded = true
	return nil
}

// --- Keycloak ---

type identityAttrs struct {
	role    string
	isAdmin bool
}

type fakeIdentity struct {
	mu    sync.Mutex
	attrs map[string]identityAttrs
	err   error
	calls int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{attrs: map[string]identityAttrs{}}
}

func (f *fakeIdentity) SetUserRoleAttributes(_ context.Context, userID, role string, isAdmin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.attrs[userID] = identityAttrs{role: role, isAdmin: isAdmin}
	return nil
}

type fakeDirectory struct {
	users   map[string]*keycloak.KeycloakUser
	realmOK bool
}

func (f *fakeDirectory) RealmInfo(context.Context) (*keycloak.RealmRepresentation, error) {
	if !f.realmOK {
		return nil, io.ErrUnexpectedEOF
	}
	return &keycloak.RealmRepresentation{Realm: "hostportal", Enabled: true}, nil
}

func (f *fakeDirectory) CountUsers(context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeDirectory) GetUser(_ context.Context, id string) (*keycloak.KeycloakUser, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, keycloak.ErrNotFound
	}
	return u, nil
}

// --- ресурсы хостинга ---

type fakeSites struct {
	byID map[string]*model.Site
}

func (f *fakeSites) Create(_ context.Context, s *model.Site) error {
	for _, e := range f.byID {
		if e.Domain == s.Domain {
			return repository.ErrConflict
		}
	}
	f.byID[s.ID] = s
	return nil
}

func (f *fakeSites) GetByID(_ context.Context, id string) (*model.Site, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (f *fakeSites) List(_ context.Context, ownerID *string, _, _ int) ([]*model.Site, error) {
	var out []*model.Site
	for _, s := range f.byID {
		if ownerID == nil || s.OwnerID == *ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSites) Count(ctx context.Context, ownerID *string) (int, error) {
	l, _ := f.List(ctx, ownerID, 0, 0)
	return len(l), nil
}

func (f *fakeSites) UpdateStatus(_ context.Context, id, status string) (*model.Site, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.Status = status
	return s, nil
}

func (f *fakeSites) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeProjects struct {
	byID map[string]*model.Project
}

func (f *fakeProjects) Create(_ context.Context, p *model.Project) error {
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProjects) GetByID(_ context.Context, id string) (*model.Project, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProjects) List(_ context.Context, ownerID *string, _, _ int) ([]*model.Project, error) {
	var out []*model.Project
	for _, p := range f.byID {
		if ownerID == nil || p.OwnerID == *ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProjects) Count(ctx context.Context, ownerID *string) (int, error) {
	l, _ := f.List(ctx, ownerID, 0, 0)
	return len(l), nil
}

func (f *fakeProjects) UpdateStatus(_ context.Context, id, status string) (*model.Project, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Status = status
	return p, nil
}

type fakeTickets struct {
	mu   sync.Mutex
	byID map[string]*model.Ticket
}

func (f *fakeTickets) Create(_ context.Context, t *model.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[t.ID] = t
	return nil
}

func (f *fakeTickets) GetByID(_ context.Context, id string) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) GetForUpdate(ctx context.Context, id string) (*model.Ticket, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeTickets) List(_ context.Context, ownerID, status *string, _, _ int) ([]*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Ticket
	for _, t := range f.byID {
		if ownerID != nil && t.OwnerID != *ownerID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTickets) Count(ctx context.Context, ownerID, status *string) (int, error) {
	l, _ := f.List(ctx, ownerID, status, 0, 0)
	return len(l), nil
}

func (f *fakeTickets) UpdateStatus(_ context.Context, id, status string) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Status = status
	cp := *t
	return &cp, nil
}

// inMemoryTx — TicketTx без транзакции для fake-репозитория.
func inMemoryTx(repo repository.TicketRepository) TicketTx {
	return func(_ context.Context, fn func(repository.TicketRepository) error) error {
		return fn(repo)
	}
}
