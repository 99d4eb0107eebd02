// Пакет database — пул PostgreSQL (pgxpool), миграции схемы портала
// (golang-migrate из встроенных SQL) и проверка готовности.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arturkryukov/hostportal/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connectTimeout ограничивает первый ping при старте.
const connectTimeout = 10 * time.Second

// Connect создаёт пул с параметрами HP_DB_* и проверяет доступность ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConnLifetime = cfg.DBConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(cfg.DBMaxConns)),
	)
	return pool, nil
}

// migrationURL — адрес для драйвера pgx5 golang-migrate.
// Учётные данные экранируются: пароль может содержать ':' '@' '/'.
func migrationURL(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + strconv.Itoa(cfg.DBPort),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// Migrate применяет встроенные миграции. Повторный запуск без новых миграций — не ошибка.
// Схема в состоянии dirty (прерванная миграция) требует ручного вмешательства.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(cfg))
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("версия схемы: %w", err)
	}
	if dirty {
		return fmt.Errorf("схема в состоянии dirty на версии %d", version)
	}

	logger.Info("Схема БД актуальна", slog.Uint64("version", uint64(version)))
	return nil
}

// ReadinessChecker — проверка PostgreSQL для /health/ready.
type ReadinessChecker struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку с таймаутом ping 3s.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool, timeout: 3 * time.Second}
}

// CheckReady пингует пул. Исчерпанный пул — degraded без ping: ping ждал бы свободного соединения.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	st := c.pool.Stat()
	msg := fmt.Sprintf("соединений занято %d из %d", st.AcquiredConns(), st.MaxConns())
	if st.AcquiredConns() >= st.MaxConns() {
		return "degraded", msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", msg
}
