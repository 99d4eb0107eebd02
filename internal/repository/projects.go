package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/hostportal/internal/domain/model"
)

// ProjectRepository — интерфейс CRUD для таблицы projects.
type ProjectRepository interface {
	Create(ctx context.Context, p *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	// List возвращает проекты владельца (ownerID == nil — все).
	List(ctx context.Context, ownerID *string, limit, offset int) ([]*model.Project, error)
	Count(ctx context.Context, ownerID *string) (int, error)
	UpdateStatus(ctx context.Context, id, status string) (*model.Project, error)
}

// projectRepo — реализация ProjectRepository.
type projectRepo struct {
	db DBTX
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db DBTX) ProjectRepository {
	return &projectRepo{db: db}
}

const projectColumns = `id, owner_id, name, description, site_id, status, created_at, updated_at`

func (r *projectRepo) Create(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (id, owner_id, name, description, site_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.OwnerID, p.Name, p.Description, p.SiteID, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: владелец или сайт проекта", ErrNotFound)
		}
		return fmt.Errorf("ошибка создания проекта: %w", err)
	}
	return nil
}

func (r *projectRepo) GetByID(ctx context.Context, id string) (*model.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE id = $1`, projectColumns)

	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения проекта: %w", err)
	}
	return p, nil
}

func (r *projectRepo) List(ctx context.Context, ownerID *string, limit, offset int) ([]*model.Project, error) {
	where, args := ownerFilter(ownerID, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM projects
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, projectColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка проектов: %w", err)
	}
	defer rows.Close()

	var result []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования проекта: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *projectRepo) Count(ctx context.Context, ownerID *string) (int, error) {
	where, args := ownerFilter(ownerID, 1)

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта проектов: %w", err)
	}
	return count, nil
}

func (r *projectRepo) UpdateStatus(ctx context.Context, id, status string) (*model.Project, error) {
	query := fmt.Sprintf(`
		UPDATE projects SET status = $2
		WHERE id = $1
		RETURNING %s`, projectColumns)

	p, err := scanProject(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления статуса проекта: %w", err)
	}
	return p, nil
}

// scanProject сканирует строку с колонками projectColumns.
func scanProject(row pgx.Row) (*model.Project, error) {
	p := &model.Project{}
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.SiteID, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
