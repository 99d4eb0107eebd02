package rbac

import (
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		claims ClaimsBundle
		want   Role
	}{
		{
			name:   "roleClaim admin -> admin",
			claims: ClaimsBundle{UserID: "u1", RoleClaim: strPtr("admin")},
			want:   RoleAdmin,
		},
		{
			name:   "adminFlag true -> admin",
			claims: ClaimsBundle{UserID: "u1", AdminFlagClaim: boolPtr(true)},
			want:   RoleAdmin,
		},
		{
			name:   "roleClaim user, но adminFlag true -> admin (достаточно одного сигнала)",
			claims: ClaimsBundle{UserID: "u1", RoleClaim: strPtr("user"), AdminFlagClaim: boolPtr(true)},
			want:   RoleAdmin,
		},
		{
			name:   "roleClaim admin, adminFlag false -> admin",
			claims: ClaimsBundle{UserID: "u1", RoleClaim: strPtr("admin"), AdminFlagClaim: boolPtr(false)},
			want:   RoleAdmin,
		},
		{
			name:   "нет сигналов -> user",
			claims: ClaimsBundle{UserID: "u2"},
			want:   RoleUser,
		},
		{
			name:   "roleClaim Admin в другом регистре — не admin",
			claims: ClaimsBundle{UserID: "u2", RoleClaim: strPtr("Admin")},
			want:   RoleUser,
		},
		{
			name:   "adminFlag false -> user",
			claims: ClaimsBundle{UserID: "u2", AdminFlagClaim: boolPtr(false)},
			want:   RoleUser,
		},
		{
			name:   "пустой bundle -> guest",
			claims: ClaimsBundle{},
			want:   RoleGuest,
		},
		{
			name:   "без userId, но admin claim -> admin",
			claims: ClaimsBundle{RoleClaim: strPtr("admin")},
			want:   RoleAdmin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.claims)
			if got != tt.want {
				t.Errorf("Resolve() = %q, хотели %q", got, tt.want)
			}
		})
	}
}

// TestResolve_AdminIffSignal — перебор всех комбинаций сигналов:
// admin тогда и только тогда, когда roleClaim == "admin" или adminFlag == true.
func TestResolve_AdminIffSignal(t *testing.T) {
	roleClaims := []*string{nil, strPtr(""), strPtr("user"), strPtr("admin"), strPtr("guest")}
	flags := []*bool{nil, boolPtr(false), boolPtr(true)}
	userIDs := []string{"", "u1"}

	for _, rc := range roleClaims {
		for _, f := range flags {
			for _, uid := range userIDs {
				c := ClaimsBundle{UserID: uid, RoleClaim: rc, AdminFlagClaim: f}
				wantAdmin := (rc != nil && *rc == "admin") || (f != nil && *f)
				got := Resolve(c)
				if (got == RoleAdmin) != wantAdmin {
					t.Errorf("Resolve(%+v) = %q, ожидался admin=%v", c, got, wantAdmin)
				}
				// Детерминизм: повторный вызов даёт тот же результат
				if again := Resolve(c); again != got {
					t.Errorf("Resolve недетерминирован: %q != %q", again, got)
				}
			}
		}
	}
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		actual, required Role
		want             bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleGuest, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleUser, true},
		{RoleUser, RoleGuest, true},
		{RoleGuest, RoleUser, false},
		{RoleGuest, RoleGuest, true},
		{Role("unknown"), RoleUser, false},
	}

	for _, tt := range tests {
		if got := AtLeast(tt.actual, tt.required); got != tt.want {
			t.Errorf("AtLeast(%q, %q) = %v, хотели %v", tt.actual, tt.required, got, tt.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"admin", RoleAdmin, true},
		{" Admin ", RoleAdmin, true},
		{"USER", RoleUser, true},
		{"guest", RoleGuest, true},
		{"readonly", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), хотели (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsAssignable(t *testing.T) {
	if !IsAssignable(RoleAdmin) || !IsAssignable(RoleUser) {
		t.Error("admin и user должны назначаться")
	}
	if IsAssignable(RoleGuest) {
		t.Error("guest не должен назначаться")
	}
	if IsAssignable(Role("root")) {
		t.Error("неизвестная роль не должна назначаться")
	}
}

func TestInitialRole(t *testing.T) {
	patterns := []string{"*@hostco.example", "ops-*@partner.example", "[bad"}

	tests := []struct {
		name  string
		email string
		want  Role
	}{
		{name: "домен компании -> admin", email: "alice@hostco.example", want: RoleAdmin},
		{name: "регистр игнорируется", email: "Bob@HostCo.Example", want: RoleAdmin},
		{name: "префиксный шаблон -> admin", email: "ops-1@partner.example", want: RoleAdmin},
		{name: "чужой домен -> user", email: "carol@gmail.example", want: RoleUser},
		{name: "поддомен не совпадает", email: "dave@eu.hostco.example", want: RoleUser},
		{name: "пустой email -> user", email: "", want: RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InitialRole(tt.email, patterns); got != tt.want {
				t.Errorf("InitialRole(%q) = %q, хотели %q", tt.email, got, tt.want)
			}
		})
	}
}

// strPtr — вспомогательная функция для создания *string.
func strPtr(s string) *string {
	return &s
}

// boolPtr — вспомогательная функция для создания *bool.
func boolPtr(b bool) *bool {
	return &b
}
