// Пакет guard — решение о доступе к странице по состоянию разрешения роли.
// Чистая функция: никакой памяти, кроме переданного состояния.
package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/domain/resolution"
)

// Причины отказа. Восстанавливаются локально редиректом, пользователю не показываются.
var (
	// ErrUnauthenticated — нет действующей сессии.
	ErrUnauthenticated = errors.New("не аутентифицирован")
	// ErrInsufficientRole — роль ниже требуемой.
	ErrInsufficientRole = errors.New("недостаточно прав")
)

// Kind — тип решения.
type Kind int

const (
	// KindShowLoading — роль ещё разрешается, показать заглушку загрузки.
	KindShowLoading Kind = iota
	// KindAllow — показать содержимое страницы.
	KindAllow
	// KindRedirect — перенаправить на Target.
	KindRedirect
)

// String возвращает имя решения для логов и метрик.
func (k Kind) String() string {
	switch k {
	case KindShowLoading:
		return "show_loading"
	case KindAllow:
		return "allow"
	case KindRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision — результат Decide.
type Decision struct {
	Kind Kind
	// Target — адрес перенаправления (только для KindRedirect).
	Target string
	// Role — роль, на основании которой принято решение (пусто для ShowLoading).
	Role rbac.Role

	reason error
}

// Allow создаёт решение «показать страницу».
func Allow(role rbac.Role) Decision {
	return Decision{Kind: KindAllow, Role: role}
}

// Redirect создаёт решение «перенаправить».
func Redirect(target string, role rbac.Role, reason error) Decision {
	return Decision{Kind: KindRedirect, Target: target, Role: role, reason: reason}
}

// ShowLoading создаёт решение «показать заглушку загрузки».
func ShowLoading() Decision {
	return Decision{Kind: KindShowLoading}
}

// Reason возвращает причину перенаправления (ErrUnauthenticated / ErrInsufficientRole)
// или nil.
func (d Decision) Reason() error {
	return d.reason
}

// Policy — статическая таблица адресов перенаправления.
type Policy struct {
	// Home — домашняя страница для фактической роли.
	// Для guest — страница входа.
	Home map[rbac.Role]string
	// Overrides — явные адреса для пар (фактическая, требуемая).
	Overrides map[[2]rbac.Role]string
}

// NewPolicy создаёт политику со страницей входа и домашними страницами ролей.
func NewPolicy(signIn, userHome, adminHome string) Policy {
	return Policy{
		Home: map[rbac.Role]string{
			rbac.RoleGuest: signIn,
			rbac.RoleUser:  userHome,
			rbac.RoleAdmin: adminHome,
		},
		Overrides: map[[2]rbac.Role]string{},
	}
}

// WithOverride возвращает копию политики с явным адресом для пары ролей.
func (p Policy) WithOverride(actual, required rbac.Role, target string) Policy {
	overrides := make(map[[2]rbac.Role]string, len(p.Overrides)+1)
	for k, v := range p.Overrides {
		overrides[k] = v
	}
	overrides[[2]rbac.Role{actual, required}] = target
	p.Overrides = overrides
	return p
}

// WithOverrides добавляет адреса из пар вида "user>admin" → "/portal/forbidden".
// Ключ — фактическая и требуемая роли через '>'.
func (p Policy) WithOverrides(pairs map[string]string) (Policy, error) {
	for pair, target := range pairs {
		a, r, ok := strings.Cut(pair, ">")
		actual, okA := rbac.ParseRole(a)
		required, okR := rbac.ParseRole(r)
		if !ok || !okA || !okR {
			return p, fmt.Errorf("пара ролей %q: ожидается <роль>><роль>, например user>admin", pair)
		}
		p = p.WithOverride(actual, required, target)
	}
	return p, nil
}

// Target возвращает адрес перенаправления для пары (actual, required).
// Неизвестная роль трактуется как guest.
func (p Policy) Target(actual, required rbac.Role) string {
	if t, ok := p.Overrides[[2]rbac.Role{actual, required}]; ok {
		return t
	}
	if t, ok := p.Home[actual]; ok {
		return t
	}
	return p.Home[rbac.RoleGuest]
}

// Decide вычисляет решение для страницы с требуемой ролью required.
//
//   - Pending → ShowLoading;
//   - Resolved(r) / TimedOut(r): r ⊇ required → Allow, иначе Redirect(policy.Target(r, required)).
func Decide(state resolution.State, required rbac.Role, policy Policy) Decision {
	if !state.IsTerminal() {
		return ShowLoading()
	}

	role := state.Role
	if rbac.AtLeast(role, required) {
		return Allow(role)
	}

	reason := ErrInsufficientRole
	if !rbac.AtLeast(role, rbac.RoleUser) {
		reason = ErrUnauthenticated
	}
	return Redirect(policy.Target(role, required), role, reason)
}
