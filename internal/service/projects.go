// projects.go — проекты (работы по сайтам клиентов).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// CreateProjectInput — параметры создания проекта.
type CreateProjectInput struct {
	OwnerID     string  `json:"owner_id" validate:"required"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=4000"`
	SiteID      *string `json:"site_id" validate:"omitempty,uuid"`
}

// ProjectService — сервис проектов.
type ProjectService struct {
	projects  repository.ProjectRepository
	validator *validate.Validator
	logger    *slog.Logger
}

// NewProjectService создаёт сервис проектов.
func NewProjectService(projects repository.ProjectRepository, v *validate.Validator, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		projects:  projects,
		validator: v,
		logger:    logger.With(slog.String("component", "project_service")),
	}
}

// List возвращает проекты, видимые актору, и их количество.
func (s *ProjectService) List(ctx context.Context, actor Actor, limit, offset int) ([]*model.Project, int, error) {
	scope := actor.ownerScope()
	items, err := s.projects.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.projects.Count(ctx, scope)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get возвращает проект владельца или администратора.
func (s *ProjectService) Get(ctx context.Context, actor Actor, id string) (*model.Project, error) {
	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "получение проекта")
	}
	if !actor.canAccess(p.OwnerID) {
		return nil, ErrForbidden
	}
	return p, nil
}

// Create создаёт проект в статусе planned.
func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput) (*model.Project, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	p := &model.Project{
		ID:          uuid.New().String(),
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		SiteID:      in.SiteID,
		Status:      model.ProjectStatusPlanned,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, mapRepoError(err, "создание проекта")
	}

	s.logger.Info("Проект создан",
		slog.String("project_id", p.ID),
		slog.String("owner_id", p.OwnerID),
	)
	return p, nil
}

// SetStatus меняет статус проекта.
func (s *ProjectService) SetStatus(ctx context.Context, id, status string) (*model.Project, error) {
	switch status {
	case model.ProjectStatusPlanned, model.ProjectStatusInProgress, model.ProjectStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: статус проекта %q", ErrValidation, status)
	}
	p, err := s.projects.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, mapRepoError(err, "смена статуса проекта")
	}
	return p, nil
}
