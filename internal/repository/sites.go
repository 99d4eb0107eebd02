package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/hostportal/internal/domain/model"
)

// SiteRepository — интерфейс CRUD для таблицы sites.
type SiteRepository interface {
	// Create создаёт сайт.
	Create(ctx context.Context, s *model.Site) error
	// GetByID возвращает сайт по UUID.
	GetByID(ctx context.Context, id string) (*model.Site, error)
	// List возвращает сайты владельца (ownerID == nil — все).
	List(ctx context.Context, ownerID *string, limit, offset int) ([]*model.Site, error)
	// Count возвращает количество сайтов владельца (ownerID == nil — всех).
	Count(ctx context.Context, ownerID *string) (int, error)
	// UpdateStatus меняет статус сайта.
	UpdateStatus(ctx context.Context, id, status string) (*model.Site, error)
	// Delete удаляет сайт.
	Delete(ctx context.Context, id string) error
}

// siteRepo — реализация SiteRepository.
type siteRepo struct {
	db DBTX
}

// NewSiteRepository создаёт репозиторий сайтов.
func NewSiteRepository(db DBTX) SiteRepository {
	return &siteRepo{db: db}
}

const siteColumns = `id, owner_id, domain, plan, status, created_at, updated_at`

func (r *siteRepo) Create(ctx context.Context, s *model.Site) error {
	query := `
		INSERT INTO sites (id, owner_id, domain, plan, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		s.ID, s.OwnerID, s.Domain, s.Plan, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: домен %s уже зарегистрирован", ErrConflict, s.Domain)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец %s", ErrNotFound, s.OwnerID)
		}
		return fmt.Errorf("ошибка создания сайта: %w", err)
	}
	return nil
}

func (r *siteRepo) GetByID(ctx context.Context, id string) (*model.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE id = $1`, siteColumns)

	s, err := scanSite(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения сайта: %w", err)
	}
	return s, nil
}

func (r *siteRepo) List(ctx context.Context, ownerID *string, limit, offset int) ([]*model.Site, error) {
	where, args := ownerFilter(ownerID, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM sites
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, siteColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка сайтов: %w", err)
	}
	defer rows.Close()

	var result []*model.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования сайта: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *siteRepo) Count(ctx context.Context, ownerID *string) (int, error) {
	where, args := ownerFilter(ownerID, 1)

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sites `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта сайтов: %w", err)
	}
	return count, nil
}

func (r *siteRepo) UpdateStatus(ctx context.Context, id, status string) (*model.Site, error) {
	query := fmt.Sprintf(`
		UPDATE sites SET status = $2
		WHERE id = $1
		RETURNING %s`, siteColumns)

	s, err := scanSite(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления статуса сайта: %w", err)
	}
	return s, nil
}

func (r *siteRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления сайта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanSite сканирует строку с колонками siteColumns.
func scanSite(row pgx.Row) (*model.Site, error) {
	s := &model.Site{}
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Domain, &s.Plan, &s.Status,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
