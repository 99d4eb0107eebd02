// Пакет rbac — определение роли пользователя портала.
// Роль выводится из claims Identity Provider и никогда не хранится на клиенте
// как источник истины. Порядок привилегий: admin ⊇ user ⊇ guest.
package rbac

import (
	"path"
	"strings"
)

// Role — роль пользователя портала.
type Role string

// Роли в порядке возрастания привилегий.
const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[Role]int{
	RoleGuest: 0,
	RoleUser:  1,
	RoleAdmin: 2,
}

// ClaimsBundle — снимок claims из Identity Provider на момент проверки сессии.
// Создаётся заново при каждой попытке разрешения роли, не изменяется.
type ClaimsBundle struct {
	// UserID — идентификатор пользователя в IdP (sub). Пустой — сессии нет.
	UserID string
	// RoleClaim — строковый claim роли (может отсутствовать).
	RoleClaim *string
	// AdminFlagClaim — булев флаг администратора (может отсутствовать).
	AdminFlagClaim *bool
}

// Resolve вычисляет роль из claims.
// Admin — если RoleClaim == "admin" ИЛИ AdminFlagClaim == true: любого из сигналов достаточно.
// Иначе User при наличии UserID, Guest — без него.
func Resolve(c ClaimsBundle) Role {
	if c.RoleClaim != nil && *c.RoleClaim == string(RoleAdmin) {
		return RoleAdmin
	}
	if c.AdminFlagClaim != nil && *c.AdminFlagClaim {
		return RoleAdmin
	}
	if c.UserID != "" {
		return RoleUser
	}
	return RoleGuest
}

// AtLeast проверяет, что роль actual не ниже required.
// Неизвестные роли приравниваются к guest.
func AtLeast(actual, required Role) bool {
	return roleWeight[actual] >= roleWeight[required]
}

// IsAssignable проверяет, можно ли назначить роль учётной записи.
// Guest — отсутствие сессии, записью пользователя не назначается.
func IsAssignable(role Role) bool {
	return role == RoleUser || role == RoleAdmin
}

// ParseRole приводит строку к Role (регистр и пробелы игнорируются).
// Возвращает false для неизвестной роли.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleWeight[r]; !ok {
		return "", false
	}
	return r, true
}

// InitialRole определяет роль нового пользователя по email.
// Совпадение с одним из glob-шаблонов allow-листа (например, "*@hostco.example") даёт admin,
// иначе — user. Некорректные шаблоны пропускаются.
func InitialRole(email string, adminPatterns []string) Role {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return RoleUser
	}
	for _, p := range adminPatterns {
		matched, err := path.Match(strings.ToLower(p), email)
		if err == nil && matched {
			return RoleAdmin
		}
	}
	return RoleUser
}
