package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeKeycloak — token endpoint и Admin API realm hostportal.
type fakeKeycloak struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	tokenCalls  int
	tokenForm   map[string]string
	tokenStatus int
	expiresIn   int
	users       map[string]*KeycloakUser
	puts        []string
	failPut     bool
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	kc := &fakeKeycloak{t: t, expiresIn: 300, users: map[string]*KeycloakUser{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/hostportal/protocol/openid-connect/token", kc.token)
	mux.HandleFunc("GET /admin/realms/hostportal", kc.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, RealmRepresentation{Realm: "hostportal", Enabled: true})
	}))
	mux.HandleFunc("GET /admin/realms/hostportal/users/count", kc.authorized(func(w http.ResponseWriter, _ *http.Request) {
		kc.mu.Lock()
		n := len(kc.users)
		kc.mu.Unlock()
		writeJSON(w, n)
	}))
	mux.HandleFunc("GET /admin/realms/hostportal/users/{id}", kc.authorized(kc.getUser))
	mux.HandleFunc("PUT /admin/realms/hostportal/users/{id}", kc.authorized(kc.putUser))

	kc.srv = httptest.NewServer(mux)
	t.Cleanup(kc.srv.Close)
	return kc
}

func (kc *fakeKeycloak) client() *Client {
	return New(kc.srv.URL+"/", "hostportal", "hostportal-admin", "test-secret", kc.srv.Client(), testLogger())
}

func (kc *fakeKeycloak) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.tokenCalls++
	kc.tokenForm = map[string]string{
		"grant_type":    r.PostForm.Get("grant_type"),
		"client_id":     r.PostForm.Get("client_id"),
		"client_secret": r.PostForm.Get("client_secret"),
	}
	if kc.tokenStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(kc.tokenStatus)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}
	writeJSON(w, map[string]any{
		"access_token": "sa-token",
		"token_type":   "Bearer",
		"expires_in":   kc.expiresIn,
	})
}

func (kc *fakeKeycloak) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sa-token" {
			kc.t.Errorf("Authorization = %q, ожидался Bearer sa-token", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (kc *fakeKeycloak) getUser(w http.ResponseWriter, r *http.Request) {
	kc.mu.Lock()
	u, ok := kc.users[r.PathValue("id")]
	kc.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, u)
}

func (kc *fakeKeycloak) putUser(w http.ResponseWriter, r *http.Request) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if kc.failPut {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"unknown_error"}`))
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		kc.t.Errorf("Content-Type = %q, ожидался application/json", ct)
	}
	body, _ := io.ReadAll(r.Body)
	var u KeycloakUser
	if err := json.Unmarshal(body, &u); err != nil {
		kc.t.Errorf("некорректное тело PUT: %v", err)
	}
	kc.users[r.PathValue("id")] = &u
	kc.puts = append(kc.puts, string(body))
	w.WriteHeader(http.StatusNoContent)
}

func (kc *fakeKeycloak) user(id string) *KeycloakUser {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.users[id]
}

func (kc *fakeKeycloak) set(fn func()) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	fn()
}

func (kc *fakeKeycloak) stats() (tokenCalls int, puts []string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.tokenCalls, append([]string(nil), kc.puts...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ClientCredentials(t *testing.T) {
	kc := newFakeKeycloak(t)
	c := kc.client()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.CountUsers(ctx); err != nil {
			t.Fatalf("CountUsers: %v", err)
		}
	}

	if calls, _ := kc.stats(); calls != 1 {
		t.Errorf("запросов токена = %d, ожидался 1 (кэш)", calls)
	}
	want := map[string]string{"grant_type": "client_credentials", "client_id": "hostportal-admin", "client_secret": "test-secret"}
	var form map[string]string
	kc.set(func() { form = kc.tokenForm })
	for k, v := range want {
		if form[k] != v {
			t.Errorf("%s = %q, ожидался %q", k, form[k], v)
		}
	}
}

func TestClient_TokenExpiring(t *testing.T) {
	kc := newFakeKeycloak(t)
	// Срок меньше запаса обновления oauth2: токен обновляется на каждый запрос
	kc.expiresIn = 1
	c := kc.client()

	for i := 0; i < 2; i++ {
		if _, err := c.RealmInfo(context.Background()); err != nil {
			t.Fatalf("RealmInfo: %v", err)
		}
	}
	if calls, _ := kc.stats(); calls != 2 {
		t.Errorf("запросов токена = %d, ожидалось 2", calls)
	}
}

func TestClient_TokenError(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.tokenStatus = http.StatusUnauthorized

	_, err := kc.client().CountUsers(context.Background())
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		t.Fatalf("ожидалась oauth2.RetrieveError, получена: %v", err)
	}
	if re.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидался 401", re.Response.StatusCode)
	}
}

func TestClient_RealmInfoAndCount(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.users["u1"] = &KeycloakUser{ID: "u1"}
	kc.users["u2"] = &KeycloakUser{ID: "u2"}
	c := kc.client()

	realm, err := c.RealmInfo(context.Background())
	if err != nil {
		t.Fatalf("RealmInfo: %v", err)
	}
	if realm.Realm != "hostportal" || !realm.Enabled {
		t.Errorf("realm = %+v", realm)
	}

	n, err := c.CountUsers(context.Background())
	if err != nil || n != 2 {
		t.Errorf("CountUsers = %d, %v; ожидалось 2", n, err)
	}
}

func TestClient_GetUser(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.users["user-123"] = &KeycloakUser{ID: "user-123", Username: "alice", Enabled: true}
	c := kc.client()

	u, err := c.GetUser(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("username = %q", u.Username)
	}

	if _, err := c.GetUser(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получена: %v", err)
	}
}

func TestClient_UnreachableKeycloak(t *testing.T) {
	c := New("http://127.0.0.1:1", "hostportal", "id", "secret", &http.Client{Timeout: 200 * time.Millisecond}, testLogger())
	if _, err := c.RealmInfo(context.Background()); err == nil {
		t.Error("ожидалась ошибка для недоступного Keycloak")
	}
}

func TestAttribute(t *testing.T) {
	user := &KeycloakUser{Attributes: map[string][]string{
		"portal_role": {"admin", "user"},
		"empty":       {},
	}}
	tests := map[string]string{"portal_role": "admin", "empty": "", "missing": ""}
	for name, want := range tests {
		if got := user.Attribute(name); got != want {
			t.Errorf("Attribute(%q) = %q, ожидался %q", name, got, want)
		}
	}
}

func TestClient_SetUserRoleAttributes(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.users["user-1"] = &KeycloakUser{
		ID: "user-1", Username: "alice", Email: "alice@hostco.example", Enabled: true,
		Attributes: map[string][]string{"locale": {"ru"}},
	}

	if err := kc.client().SetUserRoleAttributes(context.Background(), "user-1", "admin", true); err != nil {
		t.Fatalf("SetUserRoleAttributes: %v", err)
	}

	u := kc.user("user-1")
	if got := u.Attribute("portal_role"); got != "admin" {
		t.Errorf("portal_role = %q, ожидался admin", got)
	}
	if got := u.Attribute("portal_admin"); got != "true" {
		t.Errorf("portal_admin = %q, ожидался true", got)
	}
	if got := u.Attribute("locale"); got != "ru" {
		t.Errorf("посторонний атрибут потерян: locale=%q", got)
	}
	if u.Username != "alice" || !u.Enabled {
		t.Errorf("поля пользователя потеряны: %+v", u)
	}
}

func TestClient_SetUserRoleAttributes_Idempotent(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.users["user-1"] = &KeycloakUser{ID: "user-1", Username: "bob", Enabled: true}
	c := kc.client()

	for i := 0; i < 2; i++ {
		if err := c.SetUserRoleAttributes(context.Background(), "user-1", "user", false); err != nil {
			t.Fatalf("вызов %d: %v", i+1, err)
		}
	}
	if _, puts := kc.stats(); len(puts) != 2 || puts[0] != puts[1] {
		t.Errorf("повтор должен отправлять то же представление: %v", puts)
	}
}

func TestClient_SetUserRoleAttributes_CustomNames(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.users["user-1"] = &KeycloakUser{ID: "user-1"}
	c := kc.client().WithAttributeNames("hosting_role", "")

	if role, admin := c.AttributeNames(); role != "hosting_role" || admin != DefaultAdminAttribute {
		t.Errorf("AttributeNames = %q, %q", role, admin)
	}
	if err := c.SetUserRoleAttributes(context.Background(), "user-1", "user", false); err != nil {
		t.Fatalf("SetUserRoleAttributes: %v", err)
	}
	u := kc.user("user-1")
	if u.Attribute("hosting_role") != "user" || u.Attribute("portal_admin") != "false" {
		t.Errorf("атрибуты = %v", u.Attributes)
	}
}

func TestClient_SetUserRoleAttributes_Errors(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.users["user-1"] = &KeycloakUser{ID: "user-1"}
	c := kc.client()

	if err := c.SetUserRoleAttributes(context.Background(), "ghost", "user", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получена: %v", err)
	}
	if _, puts := kc.stats(); len(puts) != 0 {
		t.Errorf("PUT не должен выполняться, было %d", len(puts))
	}

	kc.set(func() { kc.failPut = true })
	err := c.SetUserRoleAttributes(context.Background(), "user-1", "admin", true)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("ожидалась ошибка со статусом 500, получена: %v", err)
	}
}
