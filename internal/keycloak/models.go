// Пакет keycloak — клиент Keycloak Admin REST API.
package keycloak

// KeycloakUser — представление пользователя Admin API.
// Поля, которых нет в теле PUT, Keycloak оставляет без изменений.
type KeycloakUser struct { //nolint:revive // имя повторяет внешний API Keycloak
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Enabled  bool   `json:"enabled"`
	// Attributes — многозначные атрибуты; роль портала лежит здесь.
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// Attribute возвращает первое значение атрибута или "".
func (u *KeycloakUser) Attribute(name string) string {
	if vals := u.Attributes[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// RealmRepresentation — краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}
