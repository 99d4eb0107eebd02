// idp.go — статус Identity Provider (Keycloak) и сверка ролей БД ↔ Keycloak.
// Сверка только показывает расхождения: исправление — повторный Apply администратором.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/arturkryukov/hostportal/internal/keycloak"
	"github.com/arturkryukov/hostportal/internal/repository"
)

// IdentityDirectory — чтение пользователей и realm из Keycloak.
type IdentityDirectory interface {
	RealmInfo(ctx context.Context) (*keycloak.RealmRepresentation, error)
	CountUsers(ctx context.Context) (int, error)
	GetUser(ctx context.Context, id string) (*keycloak.KeycloakUser, error)
}

// IDPService — сервис статуса Identity Provider.
type IDPService struct {
	kc          IdentityDirectory
	users       repository.UserRepository
	keycloakURL string
	realm       string
	roleAttr    string
	adminAttr   string
	logger      *slog.Logger
}

// IDPStatus — статус подключения к Keycloak.
type IDPStatus struct {
	Connected   bool
	Realm       string
	KeycloakURL string
	UsersCount  *int
	Error       *string
}

// RoleDrift — расхождение роли пользователя между БД и Keycloak.
type RoleDrift struct {
	UserID        string
	Email         string
	DBRole        string
	DBIsAdmin     bool
	IdentityRole  string
	IdentityAdmin string
	// Missing — пользователь отсутствует в Keycloak.
	Missing bool
}

// NewIDPService создаёт сервис статуса IdP.
// roleAttr/adminAttr — имена атрибутов Keycloak, куда пишется роль.
func NewIDPService(
	kc IdentityDirectory,
	users repository.UserRepository,
	keycloakURL, realm, roleAttr, adminAttr string,
	logger *slog.Logger,
) *IDPService {
	return &IDPService{
		kc:          kc,
		users:       users,
		keycloakURL: keycloakURL,
		realm:       realm,
		roleAttr:    roleAttr,
		adminAttr:   adminAttr,
		logger:      logger.With(slog.String("component", "idp_service")),
	}
}

// GetStatus возвращает статус подключения к Keycloak.
func (s *IDPService) GetStatus(ctx context.Context) *IDPStatus {
	status := &IDPStatus{
		Realm:       s.realm,
		KeycloakURL: s.keycloakURL,
	}

	if _, err := s.kc.RealmInfo(ctx); err != nil {
		errMsg := fmt.Sprintf("Keycloak недоступен: %v", err)
		status.Error = &errMsg
		return status
	}
	status.Connected = true

	usersCount, err := s.kc.CountUsers(ctx)
	if err != nil {
		s.logger.Warn("Ошибка подсчёта пользователей", slog.String("error", err.Error()))
	} else {
		status.UsersCount = &usersCount
	}

	return status
}

// FindDrift сравнивает роли страницы пользователей БД с атрибутами Keycloak.
// Пользователи без расхождений в результат не попадают.
func (s *IDPService) FindDrift(ctx context.Context, limit, offset int) ([]RoleDrift, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение пользователей: %w", err)
	}

	var drifts []RoleDrift
	for _, u := range users {
		kcUser, err := s.kc.GetUser(ctx, u.ID)
		if err != nil {
			if errors.Is(err, keycloak.ErrNotFound) {
				drifts = append(drifts, RoleDrift{
					UserID: u.ID, Email: u.Email, DBRole: u.Role, DBIsAdmin: u.IsAdmin, Missing: true,
				})
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrIDPUnavailable, err)
		}

		kcRole := kcUser.Attribute(s.roleAttr)
		kcAdmin := kcUser.Attribute(s.adminAttr)
		if kcRole != u.Role || kcAdmin != strconv.FormatBool(u.IsAdmin) {
			drifts = append(drifts, RoleDrift{
				UserID:        u.ID,
				Email:         u.Email,
				DBRole:        u.Role,
				DBIsAdmin:     u.IsAdmin,
				IdentityRole:  kcRole,
				IdentityAdmin: kcAdmin,
			})
		}
	}

	if len(drifts) > 0 {
		s.logger.Warn("Найдены расхождения ролей БД и Keycloak", slog.Int("count", len(drifts)))
	}
	return drifts, nil
}
