package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/hostportal/internal/domain/model"
)

// UserRepository — интерфейс CRUD для таблицы users.
type UserRepository interface {
	// CreateIfAbsent создаёт запись, если пользователя с таким ID ещё нет.
	// Возвращает false, если запись уже существовала (повторная доставка события).
	CreateIfAbsent(ctx context.Context, u *model.User) (bool, error)
	// GetByID возвращает пользователя по ID (sub).
	GetByID(ctx context.Context, id string) (*model.User, error)
	// List возвращает пользователей с пагинацией.
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
	// Count возвращает количество пользователей.
	Count(ctx context.Context) (int, error)
	// SetRole устанавливает роль и флаг администратора (set-to-value).
	SetRole(ctx context.Context, id, role string, isAdmin bool) error
	// SetOnboarded отмечает онбординг пройденным.
	SetOnboarded(ctx context.Context, id string) error
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, email, username, role, is_admin, onboarded, created_at, updated_at`

func (r *userRepo) CreateIfAbsent(ctx context.Context, u *model.User) (bool, error) {
	query := `
		INSERT INTO users (id, email, username, role, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.Username, u.Role, u.IsAdmin,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: email %s уже зарегистрирован", ErrConflict, u.Email)
		}
		return false, fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return true, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *userRepo) SetRole(ctx context.Context, id, role string, isAdmin bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET role = $2, is_admin = $3 WHERE id = $1`,
		id, role, isAdmin,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления роли пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) SetOnboarded(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET onboarded = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления онбординга: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanUser сканирует строку с колонками userColumns.
func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Role, &u.IsAdmin,
		&u.Onboarded, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
