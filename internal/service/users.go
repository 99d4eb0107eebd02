// users.go — чтение пользователей портала и смена роли администратором.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/repository"
)

// UserService — сервис пользователей.
type UserService struct {
	users  repository.UserRepository
	writer *RoleSyncWriter
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(users repository.UserRepository, writer *RoleSyncWriter, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		writer: writer,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает страницу пользователей и общее количество.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*model.User, int, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// ChangeRole назначает роль пользователю через двойную запись.
// При *SyncError возвращает и ошибку, и текущее состояние записи в БД.
func (s *UserService) ChangeRole(ctx context.Context, actor Actor, targetID, role string) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	err := s.writer.Apply(ctx, RoleChangeRequest{
		TargetUserID: targetID,
		NewRole:      role,
		RequestedBy:  actor.ID,
	})
	var syncErr *SyncError
	if err != nil && !errors.As(err, &syncErr) {
		return nil, err
	}

	u, getErr := s.Get(ctx, targetID)
	if getErr != nil {
		s.logger.Warn("Не удалось перечитать пользователя после смены роли",
			slog.String("user_id", targetID),
			slog.String("error", getErr.Error()),
		)
	}
	return u, err
}
