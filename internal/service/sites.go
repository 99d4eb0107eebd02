// sites.go — сайты клиентов хостинга.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// CreateSiteInput — параметры создания сайта.
type CreateSiteInput struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Domain  string `json:"domain" validate:"required,fqdn"`
	Plan    string `json:"plan" validate:"required,oneof=basic business premium"`
}

// SiteService — сервис сайтов.
type SiteService struct {
	sites     repository.SiteRepository
	validator *validate.Validator
	logger    *slog.Logger
}

// NewSiteService создаёт сервис сайтов.
func NewSiteService(sites repository.SiteRepository, v *validate.Validator, logger *slog.Logger) *SiteService {
	return &SiteService{
		sites:     sites,
		validator: v,
		logger:    logger.With(slog.String("component", "site_service")),
	}
}

// List возвращает сайты, видимые актору, и их общее количество.
func (s *SiteService) List(ctx context.Context, actor Actor, limit, offset int) ([]*model.Site, int, error) {
	scope := actor.ownerScope()
	items, err := s.sites.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.sites.Count(ctx, scope)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get возвращает сайт, если актор — владелец или администратор.
func (s *SiteService) Get(ctx context.Context, actor Actor, id string) (*model.Site, error) {
	site, err := s.sites.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "получение сайта")
	}
	if !actor.canAccess(site.OwnerID) {
		return nil, ErrForbidden
	}
	return site, nil
}

// Create создаёт активный сайт для владельца.
func (s *SiteService) Create(ctx context.Context, in CreateSiteInput) (*model.Site, error) {
	in.Domain = strings.ToLower(strings.TrimSpace(in.Domain))
	if err := s.validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	site := &model.Site{
		ID:      uuid.New().String(),
		OwnerID: in.OwnerID,
		Domain:  in.Domain,
		Plan:    in.Plan,
		Status:  model.SiteStatusActive,
	}
	if err := s.sites.Create(ctx, site); err != nil {
		return nil, mapRepoError(err, "создание сайта")
	}

	s.logger.Info("Сайт создан",
		slog.String("site_id", site.ID),
		slog.String("domain", site.Domain),
		slog.String("owner_id", site.OwnerID),
	)
	return site, nil
}

// SetStatus меняет статус сайта (active, suspended).
func (s *SiteService) SetStatus(ctx context.Context, id, status string) (*model.Site, error) {
	if status != model.SiteStatusActive && status != model.SiteStatusSuspended {
		return nil, fmt.Errorf("%w: статус сайта %q", ErrValidation, status)
	}
	site, err := s.sites.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, mapRepoError(err, "смена статуса сайта")
	}
	return site, nil
}

// Delete удаляет сайт.
func (s *SiteService) Delete(ctx context.Context, id string) error {
	if err := s.sites.Delete(ctx, id); err != nil {
		return mapRepoError(err, "удаление сайта")
	}
	s.logger.Info("Сайт удалён", slog.String("site_id", id))
	return nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса.
func mapRepoError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
