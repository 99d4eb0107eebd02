// tickets.go — обращения в поддержку.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/hostportal/internal/domain/model"
	"github.com/arturkryukov/hostportal/internal/repository"
	"github.com/arturkryukov/hostportal/internal/validate"
)

// CreateTicketInput — параметры нового обращения.
type CreateTicketInput struct {
	Subject  string `json:"subject" validate:"required,max=200"`
	Body     string `json:"body" validate:"required,max=10000"`
	Priority string `json:"priority" validate:"omitempty,ticket_priority"`
}

// TicketTx выполняет fn с репозиторием тикетов внутри одной транзакции.
type TicketTx func(ctx context.Context, fn func(repository.TicketRepository) error) error

// NewTicketTx строит TicketTx поверх TxRunner.
func NewTicketTx(runner *repository.TxRunner) TicketTx {
	return func(ctx context.Context, fn func(repository.TicketRepository) error) error {
		return runner.RunInTx(ctx, func(tx pgx.Tx) error {
			return fn(repository.NewTicketRepository(tx))
		})
	}
}

// TicketService — сервис обращений.
type TicketService struct {
	tickets   repository.TicketRepository
	inTx      TicketTx
	validator *validate.Validator
	logger    *slog.Logger
}

// NewTicketService создаёт сервис обращений.
func NewTicketService(tickets repository.TicketRepository, inTx TicketTx, v *validate.Validator, logger *slog.Logger) *TicketService {
	return &TicketService{
		tickets:   tickets,
		inTx:      inTx,
		validator: v,
		logger:    logger.With(slog.String("component", "ticket_service")),
	}
}

// List возвращает обращения, видимые актору, с необязательным фильтром статуса.
func (s *TicketService) List(ctx context.Context, actor Actor, status *string, limit, offset int) ([]*model.Ticket, int, error) {
	if status != nil && !model.IsTicketStatus(*status) {
		return nil, 0, fmt.Errorf("%w: статус %q", ErrValidation, *status)
	}
	scope := actor.ownerScope()
	items, err := s.tickets.List(ctx, scope, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.tickets.Count(ctx, scope, status)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get возвращает обращение владельца или администратора.
func (s *TicketService) Get(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "получение обращения")
	}
	if !actor.canAccess(t.OwnerID) {
		return nil, ErrForbidden
	}
	return t, nil
}

// Create открывает обращение от имени актора.
func (s *TicketService) Create(ctx context.Context, actor Actor, in CreateTicketInput) (*model.Ticket, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if in.Priority == "" {
		in.Priority = model.TicketPriorityNormal
	}

	t := &model.Ticket{
		ID:       uuid.New().String(),
		OwnerID:  actor.ID,
		Subject:  in.Subject,
		Body:     in.Body,
		Priority: in.Priority,
		Status:   model.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, mapRepoError(err, "создание обращения")
	}

	s.logger.Info("Обращение создано",
		slog.String("ticket_id", t.ID),
		slog.String("owner_id", t.OwnerID),
		slog.String("priority", t.Priority),
	)
	return t, nil
}

// Transition переводит обращение в статус to.
// Проверка и запись выполняются под блокировкой строки.
func (s *TicketService) Transition(ctx context.Context, id, to string) (*model.Ticket, error) {
	if !model.IsTicketStatus(to) {
		return nil, fmt.Errorf("%w: статус %q", ErrValidation, to)
	}

	var updated *model.Ticket
	err := s.inTx(ctx, func(repo repository.TicketRepository) error {
		cur, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return mapRepoError(err, "получение обращения")
		}
		if !model.CanTransition(cur.Status, to) {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur.Status, to)
		}
		updated, err = repo.UpdateStatus(ctx, id, to)
		if err != nil {
			return mapRepoError(err, "смена статуса обращения")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Статус обращения изменён",
		slog.String("ticket_id", id),
		slog.String("status", to),
	)
	return updated, nil
}
