// onboarding.go — обработка события регистрации пользователя в IdP
// и завершение онбординга самим пользователем.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/domain/rbac"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// EventUserCreated — тип события регистрации.
const EventUserCreated = "user.created"

// onboardingActor — инициатор записи начальной роли.
const onboardingActor = "system:onboarding"

// UserCreatedEvent — полезная нагрузка webhook о новом пользователе IdP.
type UserCreatedEvent struct {
	Type     string `json:"type" validate:"required,eq=user.created"`
	UserID   string `json:"user_id" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username"`
}

// OnboardingService — заведение пользователей по событиям IdP.
type OnboardingService struct {
	users         repository.UserRepository
	writer        *RoleSyncWriter
	validator     *validate.Validator
	adminPatterns []string
	logger        *slog.Logger
}

// NewOnboardingService создаёт сервис онбординга.
// adminPatterns — glob-шаблоны email, дающие начальную роль admin.
func NewOnboardingService(
	users repository.UserRepository,
	writer *RoleSyncWriter,
	v *validate.Validator,
	adminPatterns []string,
	logger *slog.Logger,
) *OnboardingService {
	return &OnboardingService{
		users:         users,
		writer:        writer,
		validator:     v,
		adminPatterns: adminPatterns,
		logger:        logger.With(slog.String("component", "onboarding_service")),
	}
}

// HandleUserCreated заводит пользователя с начальной ролью и записывает её в оба хранилища.
// Повторная доставка для существующего пользователя (created = false) заново записывает
// роль из БД: так первая доставка, упавшая на записи в Keycloak, сходится, а роль,
// назначенная вручную, не заменяется начальной.
// Сбой записи в Keycloak возвращается как *SyncError (ErrPartialSync).
func (s *OnboardingService) HandleUserCreated(ctx context.Context, ev UserCreatedEvent) (bool, error) {
	if err := s.validator.Struct(ev); err != nil {
		onboardingTotal.WithLabelValues("invalid").Inc()
		return false, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	role := rbac.InitialRole(ev.Email, s.adminPatterns)
	u := &model.User{
		ID:       ev.UserID,
		Email:    ev.Email,
		Username: ev.Username,
		Role:     string(role),
		IsAdmin:  role == rbac.RoleAdmin,
	}

	created, err := s.users.CreateIfAbsent(ctx, u)
	if err != nil {
		onboardingTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, repository.ErrConflict) {
			return false, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return false, fmt.Errorf("создание пользователя: %w", err)
	}

	outcome := "created"
	if !created {
		outcome = "duplicate"
		stored, err := s.users.GetByID(ctx, ev.UserID)
		if err != nil {
			onboardingTotal.WithLabelValues("failed").Inc()
			return false, fmt.Errorf("чтение пользователя: %w", err)
		}
		role = rbac.Role(stored.Role)
		s.logger.Debug("Повторное событие регистрации, повторная запись роли",
			slog.String("user_id", ev.UserID),
			slog.String("role", stored.Role),
		)
	}

	err = s.writer.Apply(ctx, RoleChangeRequest{
		TargetUserID: ev.UserID,
		NewRole:      string(role),
		RequestedBy:  onboardingActor,
	})
	if err != nil {
		onboardingTotal.WithLabelValues("failed").Inc()
		return created, err
	}

	onboardingTotal.WithLabelValues(outcome).Inc()
	if created {
		s.logger.Info("Пользователь заведён",
			slog.String("user_id", ev.UserID),
			slog.String("role", string(role)),
		)
	}
	return created, nil
}

// CompleteOnboarding отмечает онбординг пользователя пройденным.
func (s *OnboardingService) CompleteOnboarding(ctx context.Context, userID string) error {
	if err := s.users.SetOnboarded(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("завершение онбординга: %w", err)
	}
	return nil
}
