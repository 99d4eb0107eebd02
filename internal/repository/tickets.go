package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/hostportal/internal/domain/model"
)

// TicketRepository — интерфейс CRUD для таблицы tickets.
type TicketRepository interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	// GetForUpdate возвращает тикет с блокировкой строки (только внутри транзакции).
	GetForUpdate(ctx context.Context, id string) (*model.Ticket, error)
	// List возвращает тикеты владельца (ownerID == nil — все) с фильтром по статусу.
	List(ctx context.Context, ownerID, status *string, limit, offset int) ([]*model.Ticket, error)
	Count(ctx context.Context, ownerID, status *string) (int, error)
	UpdateStatus(ctx context.Context, id, status string) (*model.Ticket, error)
}

// ticketRepo — реализация TicketRepository.
type ticketRepo struct {
	db DBTX
}

// NewTicketRepository создаёт репозиторий тикетов.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepo{db: db}
}

const ticketColumns = `id, owner_id, subject, body, priority, status, created_at, updated_at`

func (r *ticketRepo) Create(ctx context.Context, t *model.Ticket) error {
	query := `
		INSERT INTO tickets (id, owner_id, subject, body, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		t.ID, t.OwnerID, t.Subject, t.Body, t.Priority, t.Status,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец %s", ErrNotFound, t.OwnerID)
		}
		return fmt.Errorf("ошибка создания тикета: %w", err)
	}
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	return r.get(ctx, fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1`, ticketColumns), id)
}

func (r *ticketRepo) GetForUpdate(ctx context.Context, id string) (*model.Ticket, error) {
	return r.get(ctx, fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1 FOR UPDATE`, ticketColumns), id)
}

func (r *ticketRepo) get(ctx context.Context, query, id string) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения тикета: %w", err)
	}
	return t, nil
}

// ticketFilter формирует WHERE по владельцу и статусу.
func ticketFilter(ownerID, status *string) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	if ownerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argNum))
		args = append(args, *ownerID)
		argNum++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *status)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *ticketRepo) List(ctx context.Context, ownerID, status *string, limit, offset int) ([]*model.Ticket, error) {
	where, args := ticketFilter(ownerID, status)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM tickets
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, ticketColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка тикетов: %w", err)
	}
	defer rows.Close()

	var result []*model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования тикета: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *ticketRepo) Count(ctx context.Context, ownerID, status *string) (int, error) {
	where, args := ticketFilter(ownerID, status)

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта тикетов: %w", err)
	}
	return count, nil
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id, status string) (*model.Ticket, error) {
	query := fmt.Sprintf(`
		UPDATE tickets SET status = $2
		WHERE id = $1
		RETURNING %s`, ticketColumns)

	t, err := scanTicket(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления статуса тикета: %w", err)
	}
	return t, nil
}

// scanTicket сканирует строку с колонками ticketColumns.
func scanTicket(row pgx.Row) (*model.Ticket, error) {
	t := &model.Ticket{}
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Subject, &t.Body, &t.Priority, &t.Status,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
